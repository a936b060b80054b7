/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package suggestmanager publishes formatter rewrites as inline review
// suggestions on a pull request. The working tree's unified diff is parsed
// into per-line edits, grouped into contiguous replacements, and posted as a
// single review whose comments carry GitHub suggestion blocks tagged with
// the configured tool name.
package suggestmanager
