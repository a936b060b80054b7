/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runqueue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGroupKey(t *testing.T) {
	if got, want := GroupKey("black", "refs/pull/7/head"), "black-refs/pull/7/head"; got != want {
		t.Errorf("GroupKey = %q, want %q", got, want)
	}
}

func TestBeginCancelsInFlightRun(t *testing.T) {
	c := NewCoordinator()

	first := c.Begin(context.Background(), "black-refs/pull/1/head")
	if err := first.Context().Err(); err != nil {
		t.Fatalf("first run should start live, got %v", err)
	}

	second := c.Begin(context.Background(), "black-refs/pull/1/head")

	select {
	case <-first.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("first run was not canceled by the second")
	}

	if !first.Superseded() {
		t.Error("first run should report superseded")
	}
	if !errors.Is(context.Cause(first.Context()), ErrSuperseded) {
		t.Errorf("cause = %v, want ErrSuperseded", context.Cause(first.Context()))
	}

	if err := second.Context().Err(); err != nil {
		t.Fatalf("second run should remain live, got %v", err)
	}
	if second.Superseded() {
		t.Error("second run should not report superseded")
	}

	second.Finish("ok")
}

func TestDistinctKeysDoNotInterfere(t *testing.T) {
	c := NewCoordinator()

	a := c.Begin(context.Background(), "black-refs/pull/1/head")
	b := c.Begin(context.Background(), "black-refs/pull/2/head")

	if err := a.Context().Err(); err != nil {
		t.Errorf("run a canceled unexpectedly: %v", err)
	}
	if err := b.Context().Err(); err != nil {
		t.Errorf("run b canceled unexpectedly: %v", err)
	}

	a.Finish("ok")
	b.Finish("ok")

	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight = %d, want 0", got)
	}
}

func TestGenerations(t *testing.T) {
	c := NewCoordinator()

	first := c.Begin(context.Background(), "k")
	second := c.Begin(context.Background(), "k")
	third := c.Begin(context.Background(), "k")

	if got := first.Generation(); got != 0 {
		t.Errorf("first generation = %d, want 0", got)
	}
	if got := second.Generation(); got != 1 {
		t.Errorf("second generation = %d, want 1", got)
	}
	if got := third.Generation(); got != 2 {
		t.Errorf("third generation = %d, want 2", got)
	}

	third.Finish("ok")

	// A drained group starts over.
	fresh := c.Begin(context.Background(), "k")
	if got := fresh.Generation(); got != 0 {
		t.Errorf("fresh generation = %d, want 0", got)
	}
	fresh.Finish("ok")
}

func TestSupersededFinishKeepsNewerSlot(t *testing.T) {
	c := NewCoordinator()

	first := c.Begin(context.Background(), "k")
	second := c.Begin(context.Background(), "k")

	// The superseded run finishing must not clear the newer run's slot.
	first.Finish("canceled")
	if got := c.InFlight(); got != 1 {
		t.Fatalf("InFlight = %d, want 1", got)
	}

	second.Finish("ok")
	if got := c.InFlight(); got != 0 {
		t.Errorf("InFlight = %d, want 0", got)
	}
}

func TestParentCancellationPropagates(t *testing.T) {
	c := NewCoordinator()

	ctx, cancel := context.WithCancel(context.Background())
	run := c.Begin(ctx, "k")
	cancel()

	select {
	case <-run.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("run context did not observe parent cancellation")
	}

	if run.Superseded() {
		t.Error("parent cancellation should not report superseded")
	}
	run.Finish("canceled")
}
