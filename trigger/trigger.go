/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package trigger

import (
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Filter is the pure trigger predicate derived from a Policy. It has no side
// effects and carries no state beyond the policy's branch and path lists.
type Filter struct {
	branches []string
	paths    []string
}

// NewFilter builds a Filter from the policy's trigger block.
func NewFilter(p *Policy) *Filter {
	return &Filter{
		branches: p.On.Branches,
		paths:    p.On.Paths,
	}
}

// Matches reports whether a pull request targeting baseRef with the given
// changed files qualifies for a check. Both conditions must hold: the base
// branch is allow-listed, and at least one changed path matches a glob.
func (f *Filter) Matches(baseRef string, changedFiles []string) bool {
	if !f.MatchesBranch(baseRef) {
		return false
	}
	for _, file := range changedFiles {
		if f.matchesPath(file) {
			return true
		}
	}
	return false
}

// MatchesBranch reports whether baseRef is in the allow-list. Fully-qualified
// refs are compared against their short form, so "refs/heads/master" matches
// an allow-list entry of "master".
func (f *Filter) MatchesBranch(baseRef string) bool {
	branch := strings.TrimPrefix(baseRef, "refs/heads/")
	if branch == "" {
		return false
	}
	return slices.Contains(f.branches, branch)
}

func (f *Filter) matchesPath(path string) bool {
	for _, glob := range f.paths {
		// Globs are validated at policy load, so Match cannot fail here.
		ok, _ := doublestar.Match(glob, path)
		if ok {
			return true
		}
	}
	return false
}
