/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pipeline runs a fixed sequence of named steps. Steps execute
// strictly in declared order; a step never starts before its predecessor
// succeeds, and the first failure moves the run to the terminal Failed state
// with no retries or compensating transitions.
package pipeline

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
)

// State is a run's position in the step sequence.
type State string

const (
	StateQueued           State = "Queued"
	StateCheckedOut       State = "CheckedOut"
	StateEnvironmentReady State = "EnvironmentReady"
	StateFormatted        State = "Formatted"
	StateAnnotated        State = "Annotated"
	StateDone             State = "Done"
	StateFailed           State = "Failed"
)

// Step is one unit of work. Reached is the state the run enters when the
// step succeeds.
type Step struct {
	Name    string
	Reached State
	Run     func(ctx context.Context) error
}

// StepError wraps a step failure with the step that produced it.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Pipeline executes steps sequentially. It is single-use: construct one per
// run.
type Pipeline struct {
	steps []Step
	state State
}

// New returns a Pipeline in the Queued state.
func New(steps ...Step) *Pipeline {
	return &Pipeline{
		steps: steps,
		state: StateQueued,
	}
}

// State returns the state reached so far.
func (p *Pipeline) State() State {
	return p.state
}

// Run executes the steps in order. The context is consulted before each step
// begins, so a canceled run stops between steps rather than mid-sequence.
// The first error (including cancellation) is returned wrapped in a
// StepError and moves the pipeline to Failed.
func (p *Pipeline) Run(ctx context.Context) error {
	log := clog.FromContext(ctx)

	for _, step := range p.steps {
		if err := ctx.Err(); err != nil {
			p.state = StateFailed
			return &StepError{Step: step.Name, Err: context.Cause(ctx)}
		}

		log.Infof("Running step %q", step.Name)
		if err := step.Run(ctx); err != nil {
			p.state = StateFailed
			return &StepError{Step: step.Name, Err: err}
		}
		p.state = step.Reached
	}

	p.state = StateDone
	return nil
}
