/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package suggestmanager

import (
	"fmt"
	"strings"

	"github.com/google/go-github/v84/github"
	"github.com/waigani/diffparser"
)

// edit is one contiguous rewrite: the original lines startLine..endLine
// (inclusive) are replaced by lines.
type edit struct {
	startLine int
	endLine   int
	lines     []string
}

// buildComments turns a unified diff into draft review comments, one per
// contiguous rewrite, each carrying a suggestion block.
func buildComments(diff, toolName string) ([]*github.DraftReviewComment, error) {
	if strings.TrimSpace(diff) == "" {
		return nil, nil
	}

	parsed, err := diffparser.Parse(diff)
	if err != nil {
		return nil, fmt.Errorf("parsing diff: %w", err)
	}

	var comments []*github.DraftReviewComment
	for _, file := range parsed.Files {
		path := file.NewName
		if path == "" {
			path = file.OrigName
		}
		for _, hunk := range file.Hunks {
			for _, e := range groupEdits(hunk) {
				comments = append(comments, e.comment(path, toolName))
			}
		}
	}
	return comments, nil
}

// groupEdits splits a hunk into contiguous edits separated by context lines.
// Original line numbers are tracked by walking the hunk rather than trusting
// per-line numbering, which differs by line mode.
func groupEdits(hunk *diffparser.DiffHunk) []edit {
	var edits []edit
	var cur *edit

	orig := hunk.OrigRange.Start
	lastContext := 0
	lastContextContent := ""

	flush := func() {
		if cur != nil {
			edits = append(edits, *cur)
			cur = nil
		}
	}

	for _, line := range hunk.WholeRange.Lines {
		switch line.Mode {
		case diffparser.UNCHANGED:
			flush()
			lastContext = orig
			lastContextContent = line.Content
			orig++
		case diffparser.REMOVED:
			// A removal after additions starts a fresh edit.
			if cur != nil && len(cur.lines) > 0 {
				flush()
			}
			if cur == nil {
				cur = &edit{startLine: orig}
			}
			cur.endLine = orig
			orig++
		case diffparser.ADDED:
			if cur == nil {
				if lastContext == 0 {
					// An insertion before any anchorable line cannot be
					// expressed as a suggestion; drop it.
					continue
				}
				// Pure insertion: anchor on the preceding context line and
				// keep its content at the top of the suggestion.
				cur = &edit{
					startLine: lastContext,
					endLine:   lastContext,
					lines:     []string{lastContextContent},
				}
			}
			cur.lines = append(cur.lines, line.Content)
		}
	}
	flush()

	return edits
}

// comment renders the edit as a draft review comment with a suggestion
// block. An edit with no replacement lines produces an empty suggestion,
// which GitHub renders as a deletion.
func (e edit) comment(path, toolName string) *github.DraftReviewComment {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] suggested change:\n\n", toolName)
	sb.WriteString("```suggestion\n")
	for _, line := range e.lines {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	sb.WriteString("```")

	c := &github.DraftReviewComment{
		Path: github.Ptr(path),
		Body: github.Ptr(sb.String()),
		Line: github.Ptr(e.endLine),
		Side: github.Ptr("RIGHT"),
	}
	if e.startLine < e.endLine {
		c.StartLine = github.Ptr(e.startLine)
		c.StartSide = github.Ptr("RIGHT")
	}
	return c
}
