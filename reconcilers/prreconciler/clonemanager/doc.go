/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package clonemanager owns a pool of git clones leased out one run at a
// time. A lease materializes the pull request's triggering commit into the
// clone's working tree; Return hands the clone back with the tree reset, so
// nothing leaks between runs.
package clonemanager
