/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package runqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrSuperseded is the cancellation cause attached to a run's context when a
// newer run for the same group key begins.
var ErrSuperseded = errors.New("superseded by a newer run for the same group")

var (
	runsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbird_runs_started_total",
		Help: "Runs started, by group key.",
	}, []string{"group"})
	runsSuperseded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbird_runs_superseded_total",
		Help: "Runs canceled because a newer run for the same group began.",
	}, []string{"group"})
	runsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blackbird_runs_finished_total",
		Help: "Runs finished, by group key and outcome.",
	}, []string{"group", "outcome"})
)

// GroupKey derives the concurrency group key from the workflow identity and
// the ref being built.
func GroupKey(workflow, ref string) string {
	return fmt.Sprintf("%s-%s", workflow, ref)
}

// Coordinator tracks in-flight runs by group key. The zero value is not
// usable; construct with NewCoordinator.
type Coordinator struct {
	mu     sync.Mutex
	active map[string]*Run
}

// NewCoordinator returns an empty Coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		active: make(map[string]*Run),
	}
}

// Run is a handle for a single in-flight run. Its context is canceled (with
// cause ErrSuperseded) when a newer run for the same group key begins, or
// when the parent context given to Begin is canceled.
type Run struct {
	coordinator *Coordinator
	key         string
	generation  uint64

	ctx    context.Context
	cancel context.CancelCauseFunc
}

// Begin registers a new run for the group key, canceling any run already in
// flight for that key. The returned Run's context must be consulted before
// each side-effecting step; call Finish exactly once when the run ends.
func (c *Coordinator) Begin(ctx context.Context, key string) *Run {
	c.mu.Lock()
	defer c.mu.Unlock()

	var generation uint64
	if prev, ok := c.active[key]; ok {
		generation = prev.generation + 1
		prev.cancel(ErrSuperseded)
		runsSuperseded.WithLabelValues(key).Inc()
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	run := &Run{
		coordinator: c,
		key:         key,
		generation:  generation,
		ctx:         runCtx,
		cancel:      cancel,
	}
	c.active[key] = run
	runsStarted.WithLabelValues(key).Inc()
	return run
}

// Context returns the run's context.
func (r *Run) Context() context.Context {
	return r.ctx
}

// Key returns the run's group key.
func (r *Run) Key() string {
	return r.key
}

// Generation returns the run's generation within its group. It increments
// each time a run supersedes another, and resets once a group drains.
func (r *Run) Generation() uint64 {
	return r.generation
}

// Superseded reports whether a newer run for the same group has begun.
func (r *Run) Superseded() bool {
	return context.Cause(r.ctx) == ErrSuperseded
}

// Finish releases the run's slot. If the run is still the current one for
// its key the slot is cleared; a superseded run leaves the newer run's slot
// untouched. The outcome labels the finished-runs metric ("ok", "failed",
// "canceled").
func (r *Run) Finish(outcome string) {
	r.cancel(nil)

	c := r.coordinator
	c.mu.Lock()
	if cur, ok := c.active[r.key]; ok && cur == r {
		delete(c.active, r.key)
	}
	c.mu.Unlock()

	runsFinished.WithLabelValues(r.key, outcome).Inc()
}

// InFlight returns the number of group keys with a registered run.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
