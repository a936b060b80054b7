/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pyenv provisions an isolated Python environment of a fixed
// interpreter version and installs pinned tools into it. Environments are
// ephemeral: created fresh per run and removed when closed, so no state
// crosses runs.
package pyenv
