/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package formatter invokes black against a checked-out working tree.
//
// black is run in its default write mode: non-conforming files are rewritten
// in place and the process still exits zero. The check is therefore judged by
// the working tree, not the exit status: a dirty tree after the run is the
// expected "useful" failure mode signaling that code needs reformatting, and
// it is what the annotation step turns into review suggestions. A non-zero
// exit (internal error, unparsable input) is a plain failure.
package formatter
