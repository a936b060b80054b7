/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package formatter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
)

// Runner invokes a black binary against working trees.
type Runner struct {
	binary  string
	options []string
	summary bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithOptions appends extra command-line options passed to black, given as a
// single space-separated string. An empty string adds nothing.
func WithOptions(options string) Option {
	return func(r *Runner) {
		r.options = append(r.options, strings.Fields(options)...)
	}
}

// WithSummary enables black's summary output. It is suppressed by default
// (black runs with --quiet).
func WithSummary(summary bool) Option {
	return func(r *Runner) {
		r.summary = summary
	}
}

// New constructs a Runner for the given black binary path.
func New(binary string, opts ...Option) (*Runner, error) {
	if binary == "" {
		return nil, errors.New("binary cannot be empty")
	}
	r := &Runner{binary: binary}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Result captures one formatter invocation.
type Result struct {
	// Reformatted lists the repository-relative paths black rewrote.
	Reformatted []string
	// Output is black's combined stdout and stderr.
	Output string
}

// FormattingError reports that the check found non-conforming files. It is
// the expected failure mode of a run, distinct from operational errors.
type FormattingError struct {
	Files []string
}

func (e *FormattingError) Error() string {
	return fmt.Sprintf("black reformatted %d file(s): %s", len(e.Files), strings.Join(e.Files, ", "))
}

// Check runs black over the working tree rooted at dir, then inspects the
// tree's git status to find what was rewritten. It returns a FormattingError
// when any file changed. The tree must be clean before the call.
func (r *Runner) Check(ctx context.Context, dir string) (*Result, error) {
	args := []string{}
	if !r.summary {
		args = append(args, "--quiet")
	}
	args = append(args, r.options...)
	args = append(args, ".")

	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Dir = dir
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	clog.FromContext(ctx).Infof("Running %s %s in %s", r.binary, strings.Join(args, " "), dir)
	if err := cmd.Run(); err != nil {
		return &Result{Output: buf.String()}, fmt.Errorf("running black: %w: %s", err, strings.TrimSpace(buf.String()))
	}

	reformatted, err := modifiedFiles(dir)
	if err != nil {
		return &Result{Output: buf.String()}, err
	}

	res := &Result{
		Reformatted: reformatted,
		Output:      buf.String(),
	}
	if len(reformatted) > 0 {
		return res, &FormattingError{Files: reformatted}
	}
	return res, nil
}

// modifiedFiles returns the tracked files with worktree modifications,
// sorted for stable output.
func modifiedFiles(dir string) ([]string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("opening repo: %w", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}

	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("getting worktree status: %w", err)
	}

	var files []string
	for path, st := range status {
		if st.Worktree == git.Modified || st.Staging == git.Modified {
			files = append(files, path)
		}
	}
	sort.Strings(files)
	return files, nil
}
