/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package suggestmanager

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"chainguard.dev/blackbird/reconcilers/prreconciler"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
)

// SM manages review-suggestion publishing for a specific tool identity.
type SM struct {
	toolName string
}

// New creates an SM whose published suggestions are tagged with toolName.
func New(toolName string) (*SM, error) {
	if toolName == "" {
		return nil, errors.New("toolName cannot be empty")
	}
	return &SM{toolName: toolName}, nil
}

// Session represents suggestion publishing for one pull request run.
type Session struct {
	manager      *SM
	client       *github.Client
	resource     *prreconciler.Resource
	changedFiles []string
}

// NewSession creates a Session for the given pull request. changedFiles is
// the PR's own changed-path list; suggestions for files outside it cannot be
// attached to the review and are dropped.
func (sm *SM) NewSession(client *github.Client, res *prreconciler.Resource, changedFiles []string) *Session {
	return &Session{
		manager:      sm,
		client:       client,
		resource:     res,
		changedFiles: changedFiles,
	}
}

// Publish parses the unified diff and posts one review containing a
// suggestion comment per contiguous rewrite. A diff producing no publishable
// suggestions posts nothing. Returns the number of suggestions posted.
func (s *Session) Publish(ctx context.Context, diff string) (int, error) {
	log := clog.FromContext(ctx)

	comments, err := buildComments(diff, s.manager.toolName)
	if err != nil {
		return 0, fmt.Errorf("building suggestions: %w", err)
	}

	kept := comments[:0]
	for _, c := range comments {
		if slices.Contains(s.changedFiles, c.GetPath()) {
			kept = append(kept, c)
			continue
		}
		log.Warnf("Dropping suggestion for %s: not part of the pull request diff", c.GetPath())
	}

	if len(kept) == 0 {
		log.Info("No suggestions to publish")
		return 0, nil
	}

	res := s.resource
	review := &github.PullRequestReviewRequest{
		CommitID: github.Ptr(res.HeadSHA),
		Event:    github.Ptr("COMMENT"),
		Body:     github.Ptr(fmt.Sprintf("[%s] %d formatting suggestion(s).", s.manager.toolName, len(kept))),
		Comments: kept,
	}

	log.Infof("Publishing %d suggestion(s) on %s", len(kept), res)
	if _, _, err := s.client.PullRequests.CreateReview(ctx, res.Owner, res.Repo, res.Number, review); err != nil {
		return 0, fmt.Errorf("creating review: %w", err)
	}

	return len(kept), nil
}
