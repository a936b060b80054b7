/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package trigger decides whether a pull request event qualifies for a
// formatting check. An event qualifies when its base branch is in the
// policy's allow-list and at least one changed path matches a policy glob.
//
// The policy is a small YAML document mirroring the shape of a CI workflow
// trigger block, with defaults applied for anything omitted:
//
//	workflow: black
//	on:
//	  branches: [master, dev]
//	  paths: ["**/*.py"]
//	python-version: "3.8"
//	black:
//	  version: "~= 22.3.0"
//	tool-name: black
package trigger
