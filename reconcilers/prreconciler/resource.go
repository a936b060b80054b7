/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prreconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/go-github/v84/github"
)

// Resource identifies the pull request a run operates on, captured from the
// triggering event. HeadSHA pins the run to the triggering commit: pushes
// arriving after the event start their own run rather than changing this one.
type Resource struct {
	Owner   string
	Repo    string
	Number  int
	BaseRef string
	HeadRef string
	HeadSHA string
}

// String returns the conventional owner/repo#number form.
func (r *Resource) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.Number)
}

// Validate checks that every field a run depends on is populated.
func (r *Resource) Validate() error {
	switch {
	case r == nil:
		return errors.New("resource cannot be nil")
	case r.Owner == "":
		return errors.New("resource owner cannot be empty")
	case r.Repo == "":
		return errors.New("resource repo cannot be empty")
	case r.Number <= 0:
		return fmt.Errorf("resource number must be positive, got %d", r.Number)
	case r.BaseRef == "":
		return errors.New("resource base ref cannot be empty")
	case r.HeadSHA == "":
		return errors.New("resource head SHA cannot be empty")
	}
	return nil
}

// ResourceFromEvent extracts a Resource from a pull_request event payload.
func ResourceFromEvent(event *github.PullRequestEvent) (*Resource, error) {
	pr := event.GetPullRequest()
	if pr == nil {
		return nil, errors.New("event has no pull request")
	}

	res := &Resource{
		Owner:   event.GetRepo().GetOwner().GetLogin(),
		Repo:    event.GetRepo().GetName(),
		Number:  pr.GetNumber(),
		BaseRef: pr.GetBase().GetRef(),
		HeadRef: pr.GetHead().GetRef(),
		HeadSHA: pr.GetHead().GetSHA(),
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}
	return res, nil
}

// ChangedFiles lists the paths modified by the pull request, following
// pagination. The trigger filter runs against this list.
func ChangedFiles(ctx context.Context, gh *github.Client, res *Resource) ([]string, error) {
	var files []string
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := gh.PullRequests.ListFiles(ctx, res.Owner, res.Repo, res.Number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files for %s: %w", res, err)
		}
		for _, f := range page {
			files = append(files, f.GetFilename())
		}
		if resp.NextPage == 0 {
			return files, nil
		}
		opts.Page = resp.NextPage
	}
}
