/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package blackcheck wires the formatting-check pipeline over the pull
// request machinery: check out the head commit into a leased clone, provision
// the pinned Python interpreter, run black over the tree, and publish any
// resulting diff as inline review suggestions. Each step's failure is fatal
// to the run; there are no retries.
package blackcheck
