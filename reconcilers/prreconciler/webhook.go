/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prreconciler

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"chainguard.dev/blackbird/runqueue"
	"chainguard.dev/blackbird/trigger"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// triggeringActions are the pull_request actions that represent a new or
// updated head commit.
var triggeringActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// ReconcilerFunc performs the work for a single qualifying pull_request
// delivery. Implementations live outside this package.
type ReconcilerFunc func(ctx context.Context, res *Resource, changedFiles []string, gh *github.Client) error

// Handler accepts pull_request webhook deliveries, evaluates the trigger
// filter, and launches runs under the cancel-in-progress policy. Each
// qualifying delivery is acknowledged with 202 and processed asynchronously.
type Handler struct {
	ctx         context.Context
	secret      []byte
	workflow    string
	filter      *trigger.Filter
	coordinator *runqueue.Coordinator
	gh          *github.Client
	reconcile   ReconcilerFunc

	wg sync.WaitGroup
}

// NewHandler constructs a Handler. The supplied context is the parent of
// every run's context; canceling it stops in-flight runs during shutdown.
// secret is the webhook HMAC secret, empty to skip signature validation.
func NewHandler(ctx context.Context, policy *trigger.Policy, secret []byte, gh *github.Client, reconcile ReconcilerFunc) *Handler {
	return &Handler{
		ctx:         ctx,
		secret:      secret,
		workflow:    policy.Workflow,
		filter:      trigger.NewFilter(policy),
		coordinator: runqueue.NewCoordinator(),
		gh:          gh,
		reconcile:   reconcile,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := clog.FromContext(r.Context())

	payload, err := github.ValidatePayload(r, h.secret)
	if err != nil {
		log.Warnf("Rejecting delivery: %v", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		http.Error(w, "unparsable payload", http.StatusBadRequest)
		return
	}

	pre, ok := event.(*github.PullRequestEvent)
	if !ok {
		// Not an error: this workflow only reacts to pull_request events.
		fmt.Fprintln(w, "ignored")
		return
	}

	h.handlePullRequest(w, r, pre)
}

func (h *Handler) handlePullRequest(w http.ResponseWriter, r *http.Request, event *github.PullRequestEvent) {
	log := clog.FromContext(r.Context())

	if !triggeringActions[event.GetAction()] {
		fmt.Fprintln(w, "ignored")
		return
	}

	res, err := ResourceFromEvent(event)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// The branch allow-list needs nothing beyond the event payload; check it
	// before spending an API call on the file listing.
	if !h.filter.MatchesBranch(res.BaseRef) {
		log.Debugf("Trigger mismatch for %s (base %s)", res, res.BaseRef)
		fmt.Fprintln(w, "not matched")
		return
	}

	changedFiles, err := ChangedFiles(r.Context(), h.gh, res)
	if err != nil {
		log.Warnf("Listing changed files for %s: %v", res, err)
		http.Error(w, "listing changed files", http.StatusBadGateway)
		return
	}

	if !h.filter.Matches(res.BaseRef, changedFiles) {
		log.Debugf("Trigger mismatch for %s (base %s)", res, res.BaseRef)
		fmt.Fprintln(w, "not matched")
		return
	}

	// One group per pull request head, scoped to the repository so that
	// same-numbered PRs in different repositories never interfere. A second
	// push to the same PR cancels the earlier run.
	key := runqueue.GroupKey(h.workflow, fmt.Sprintf("%s/%s/refs/pull/%d/head", res.Owner, res.Repo, res.Number))
	run := h.coordinator.Begin(h.ctx, key)

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		ctx := clog.WithLogger(run.Context(), clog.FromContext(h.ctx).With(
			"group", run.Key(),
			"resource", res.String(),
		))

		err := h.reconcile(ctx, res, changedFiles, h.gh)
		switch {
		case err == nil:
			run.Finish("ok")
		case run.Superseded():
			clog.FromContext(ctx).Infof("Run superseded: %v", err)
			run.Finish("canceled")
		default:
			clog.FromContext(ctx).Errorf("Run failed: %v", err)
			run.Finish("failed")
		}
	}()

	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "queued")
}

// Wait blocks until all launched runs have finished. Intended for shutdown
// and tests.
func (h *Handler) Wait() {
	h.wg.Wait()
}
