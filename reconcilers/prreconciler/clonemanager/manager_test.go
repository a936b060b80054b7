/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chainguard.dev/blackbird/reconcilers/prreconciler"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"golang.org/x/oauth2"
)

func TestLeaseLifecycle(t *testing.T) {
	ctx := context.Background()

	mgr, err := New(ctx, staticTokenSource(""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	repoDir, headHash := initTestRepo(t)

	res := &prreconciler.Resource{
		Owner:   "tests",
		Repo:    repoDir,
		Number:  1,
		BaseRef: "master",
		HeadRef: "feature",
		HeadSHA: headHash,
	}

	repoURL = func(*prreconciler.Resource) string { return repoDir }
	t.Cleanup(func() { repoURL = defaultRemoteURL })

	lease, err := mgr.Lease(ctx, res)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}

	if got := lease.SHA(); got != headHash {
		t.Fatalf("SHA mismatch, got %s want %s", got, headHash)
	}

	workingDir := lease.WorkingTree()
	if workingDir == repoDir {
		t.Fatalf("expected working dir to differ from remote")
	}

	// The pull request commit is only reachable from refs/pull/1/head, so its
	// content proves the fetch and checkout happened.
	content, err := os.ReadFile(filepath.Join(workingDir, "main.py"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(content), "y=2") {
		t.Fatalf("expected pull request content, got %q", content)
	}

	scratch := filepath.Join(workingDir, "scratch.txt")
	if err := os.WriteFile(scratch, []byte("temporary"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := lease.Return(ctx); err != nil {
		t.Fatalf("returning lease: %v", err)
	}

	lease2, err := mgr.Lease(ctx, res)
	if err != nil {
		t.Fatalf("Lease reuse: %v", err)
	}

	if lease2.WorkingTree() != workingDir {
		t.Fatalf("expected clone to be reused")
	}

	if _, err := os.Stat(scratch); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected scratch file cleaned, got err=%v", err)
	}

	if err := lease2.Return(ctx); err != nil {
		t.Fatalf("returning lease2: %v", err)
	}
}

func TestLeaseUnresolvableHead(t *testing.T) {
	ctx := context.Background()

	mgr, err := New(ctx, staticTokenSource(""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	repoDir, _ := initTestRepo(t)

	res := &prreconciler.Resource{
		Owner:   "tests",
		Repo:    repoDir,
		Number:  1,
		BaseRef: "master",
		HeadRef: "feature",
		// A commit that does not exist anywhere, as after a force push.
		HeadSHA: "0123456789012345678901234567890123456789",
	}

	repoURL = func(*prreconciler.Resource) string { return repoDir }
	t.Cleanup(func() { repoURL = defaultRemoteURL })

	if _, err := mgr.Lease(ctx, res); err == nil {
		t.Fatal("expected lease to fail for unresolvable head SHA")
	}

	// The clone was discarded, not pooled.
	mgr.mu.Lock()
	defer mgr.mu.Unlock()
	if n := len(mgr.available); n != 0 {
		t.Fatalf("expected empty pool, got %d clones", n)
	}
}

// TestFIFOPoolBehavior verifies that the clone pool prevents churning by
// ensuring recently returned clones are not immediately reused. Clones are
// released to the back of the pool and acquired from the front, so the oldest
// returned clone is acquired next. This allows problematic clones to age out
// at the back of the pool rather than being reused repeatedly.
func TestFIFOPoolBehavior(t *testing.T) {
	ctx := context.Background()

	mgr, err := New(ctx, staticTokenSource(""))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	repoDir, headHash := initTestRepo(t)

	res := &prreconciler.Resource{
		Owner:   "tests",
		Repo:    repoDir,
		Number:  1,
		BaseRef: "master",
		HeadRef: "feature",
		HeadSHA: headHash,
	}

	repoURL = func(*prreconciler.Resource) string { return repoDir }
	t.Cleanup(func() { repoURL = defaultRemoteURL })

	// Acquire three leases, creating three clones in the pool.
	lease1, err := mgr.Lease(ctx, res)
	if err != nil {
		t.Fatalf("Lease 1: %v", err)
	}
	lease2, err := mgr.Lease(ctx, res)
	if err != nil {
		t.Fatalf("Lease 2: %v", err)
	}
	lease3, err := mgr.Lease(ctx, res)
	if err != nil {
		t.Fatalf("Lease 3: %v", err)
	}

	dir1 := lease1.WorkingTree()
	dir2 := lease2.WorkingTree()
	dir3 := lease3.WorkingTree()

	// Return clones in order: 1, 2, 3.
	// Pool state after returns: [1, 2, 3] (front to back).
	if err := lease1.Return(ctx); err != nil {
		t.Fatalf("Return lease1: %v", err)
	}
	if err := lease2.Return(ctx); err != nil {
		t.Fatalf("Return lease2: %v", err)
	}
	if err := lease3.Return(ctx); err != nil {
		t.Fatalf("Return lease3: %v", err)
	}

	// Acquiring from the front should hand clones back in return order.
	reacquired1, err := mgr.Lease(ctx, res)
	if err != nil {
		t.Fatalf("Reacquire 1: %v", err)
	}
	reacquired2, err := mgr.Lease(ctx, res)
	if err != nil {
		t.Fatalf("Reacquire 2: %v", err)
	}
	reacquired3, err := mgr.Lease(ctx, res)
	if err != nil {
		t.Fatalf("Reacquire 3: %v", err)
	}

	if got := reacquired1.WorkingTree(); got != dir1 {
		t.Errorf("First reacquire: got %s, want %s (clone 1)", got, dir1)
	}
	if got := reacquired2.WorkingTree(); got != dir2 {
		t.Errorf("Second reacquire: got %s, want %s (clone 2)", got, dir2)
	}
	if got := reacquired3.WorkingTree(); got != dir3 {
		t.Errorf("Third reacquire: got %s, want %s (clone 3)", got, dir3)
	}

	_ = reacquired1.Return(ctx)
	_ = reacquired2.Return(ctx)
	_ = reacquired3.Return(ctx)
}

// initTestRepo builds an origin repository with an initial commit on master
// and a second commit reachable only from refs/pull/1/head, mirroring how
// GitHub advertises pull request heads. It returns the repository directory
// and the pull request head hash.
func initTestRepo(t *testing.T) (string, string) {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}

	commit := func(content, msg string) plumbing.Hash {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, "main.py"), []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		if _, err := wt.Add("main.py"); err != nil {
			t.Fatalf("Add: %v", err)
		}
		hash, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{
				Name:  "Test",
				Email: "test@example.com",
				When:  time.Now(),
			},
		})
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		return hash
	}

	base := commit("x=1\n", "initial")
	head := commit("x=1\ny=2\n", "pull request change")

	// Expose the change as a pull request head and rewind master to the
	// base commit so clones do not receive the head transitively.
	if err := repo.Storer.SetReference(plumbing.NewHashReference("refs/pull/1/head", head)); err != nil {
		t.Fatalf("SetReference pull head: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewHashReference(plumbing.NewBranchReferenceName("master"), base)); err != nil {
		t.Fatalf("SetReference master: %v", err)
	}
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("master"))); err != nil {
		t.Fatalf("SetReference HEAD: %v", err)
	}
	if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		t.Fatalf("Reset: %v", err)
	}

	return dir, head.String()
}

type staticTokenSource string

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(s)}, nil
}
