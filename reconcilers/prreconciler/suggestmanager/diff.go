/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package suggestmanager

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// WorktreeDiff returns the unified diff between the checked-out commit and
// the working tree rooted at dir. After the formatter runs, this is exactly
// the set of rewrites to suggest.
func WorktreeDiff(ctx context.Context, dir string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "-C", dir, "diff", "--no-color", "--no-ext-diff")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git diff: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return stdout.String(), nil
}
