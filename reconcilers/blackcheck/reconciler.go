/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package blackcheck

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/blackbird/formatter"
	"chainguard.dev/blackbird/pipeline"
	"chainguard.dev/blackbird/pyenv"
	"chainguard.dev/blackbird/reconcilers/prreconciler"
	"chainguard.dev/blackbird/reconcilers/prreconciler/clonemanager"
	"chainguard.dev/blackbird/reconcilers/prreconciler/suggestmanager"
	"chainguard.dev/blackbird/trigger"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// Reconciler runs the formatting-check pipeline for pull requests. Its
// Reconcile method satisfies prreconciler.ReconcilerFunc.
type Reconciler struct {
	policy      *trigger.Policy
	cloneMeta   *clonemanager.Meta
	suggestions *suggestmanager.SM
	provisioner *pyenv.Provisioner
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithProvisioner overrides the interpreter provisioner, primarily for tests.
func WithProvisioner(p *pyenv.Provisioner) Option {
	return func(r *Reconciler) {
		r.provisioner = p
	}
}

// New creates a Reconciler for the given policy.
func New(policy *trigger.Policy, cloneMeta *clonemanager.Meta, opts ...Option) (*Reconciler, error) {
	if policy == nil {
		return nil, errors.New("policy cannot be nil")
	}
	if cloneMeta == nil {
		return nil, errors.New("clone meta cannot be nil")
	}

	sm, err := suggestmanager.New(policy.ToolName)
	if err != nil {
		return nil, fmt.Errorf("creating suggest manager: %w", err)
	}

	prov, err := pyenv.New(policy.PythonVersion)
	if err != nil {
		return nil, fmt.Errorf("creating provisioner: %w", err)
	}

	r := &Reconciler{
		policy:      policy,
		cloneMeta:   cloneMeta,
		suggestions: sm,
		provisioner: prov,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Reconcile runs the pipeline for one pull request: checkout, interpreter
// provisioning, formatter, suggestion publishing. Setup failures halt the
// remaining steps. A formatting delta does not halt the pipeline (the
// annotation step needs the rewritten tree) but still fails the run, as a
// FormattingError, once suggestions are published.
func (r *Reconciler) Reconcile(ctx context.Context, res *prreconciler.Resource, changedFiles []string, gh *github.Client) error {
	log := clog.FromContext(ctx)
	log.Infof("Reconciling %s at %s", res, res.HeadSHA)

	pr, _, err := gh.PullRequests.Get(ctx, res.Owner, res.Repo, res.Number)
	if err != nil {
		return fmt.Errorf("fetching PR: %w", err)
	}
	if pr.GetState() == "closed" {
		log.Info("Skipping closed PR")
		return nil
	}
	if sha := pr.GetHead().GetSHA(); sha != res.HeadSHA {
		log.Infof("Head moved from %s to %s, skipping stale run", res.HeadSHA, sha)
		return nil
	}

	mgr, err := r.cloneMeta.Get(res.Owner, res.Repo)
	if err != nil {
		return fmt.Errorf("getting clone manager: %w", err)
	}

	var (
		lease  *clonemanager.Lease
		env    *pyenv.Env
		fmtErr *formatter.FormattingError
	)
	defer func() {
		if env != nil {
			if err := env.Close(); err != nil {
				log.Warnf("Closing env: %v", err)
			}
		}
		if lease != nil {
			// Cleanup proceeds even when the run was canceled.
			if err := lease.Return(context.WithoutCancel(ctx)); err != nil {
				log.Warnf("Returning lease: %v", err)
			}
		}
	}()

	p := pipeline.New(
		pipeline.Step{
			Name:    "checkout",
			Reached: pipeline.StateCheckedOut,
			Run: func(ctx context.Context) error {
				var err error
				lease, err = mgr.Lease(ctx, res)
				return err
			},
		},
		pipeline.Step{
			Name:    "setup-python",
			Reached: pipeline.StateEnvironmentReady,
			Run: func(ctx context.Context) error {
				var err error
				env, err = r.provisioner.Provision(ctx)
				if err != nil {
					return err
				}
				return env.Install(ctx, "black", r.policy.Black.Version)
			},
		},
		pipeline.Step{
			Name:    "black",
			Reached: pipeline.StateFormatted,
			Run: func(ctx context.Context) error {
				runner, err := formatter.New(env.Bin("black"),
					formatter.WithOptions(r.policy.Black.Options),
					formatter.WithSummary(r.policy.Black.Summary),
				)
				if err != nil {
					return err
				}
				_, err = runner.Check(ctx, lease.WorkingTree())
				if errors.As(err, &fmtErr) {
					// Expected failure mode. Remember it so the run fails,
					// but let the annotation step see the rewritten tree.
					return nil
				}
				return err
			},
		},
		pipeline.Step{
			Name:    "suggest",
			Reached: pipeline.StateAnnotated,
			Run: func(ctx context.Context) error {
				diff, err := suggestmanager.WorktreeDiff(ctx, lease.WorkingTree())
				if err != nil {
					return err
				}
				session := r.suggestions.NewSession(gh, res, changedFiles)
				_, err = session.Publish(ctx, diff)
				return err
			},
		},
	)

	if err := p.Run(ctx); err != nil {
		return err
	}

	if fmtErr != nil {
		return fmt.Errorf("formatting check failed: %w", fmtErr)
	}

	log.Infof("Reconciled %s: tree is compliant or suggestions published", res)
	return nil
}
