/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package runqueue enforces the cancel-in-progress concurrency policy: at
// most one non-canceled run per group key at any time. Beginning a run for a
// key cancels any in-flight run for the same key outright. There is no
// graceful drain, and side effects already emitted by a canceled run are not
// rolled back.
package runqueue
