/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prreconciler holds the pull request machinery shared by checks:
// the Resource model pinned to a triggering head commit, changed-file
// listing, and the webhook handler that evaluates the trigger filter and
// launches runs under the cancel-in-progress policy. The work done per run
// is supplied as a ReconcilerFunc; this package never imports its
// implementations.
package prreconciler
