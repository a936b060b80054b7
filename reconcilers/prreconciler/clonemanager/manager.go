/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package clonemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"chainguard.dev/blackbird/reconcilers/prreconciler"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"golang.org/x/oauth2"
)

const cloneDirPrefix = "clonemanager-clone-"

// repoURL resolves the remote git URL for a pull request's base repository.
// Tests override this to point at local filesystem paths.
var repoURL = defaultRemoteURL

// Manager owns a pool of git clones of a single repository. Each lease is
// dedicated to one pull request run and ensures the working tree holds
// exactly the triggering commit before being handed out.
type Manager struct {
	tokenSource oauth2.TokenSource

	mu        sync.Mutex
	available []*clone
}

type clone struct {
	path string
	repo *git.Repository
}

// Lease represents an acquired clone checked out at a specific commit.
type Lease struct {
	manager *Manager
	clone   *clone

	sha string
}

// New constructs a Manager. The provided OAuth2 token source must allow
// cloning the targeted repository.
func New(_ context.Context, tokenSource oauth2.TokenSource) (*Manager, error) {
	if tokenSource == nil {
		return nil, errors.New("token source cannot be nil")
	}
	return &Manager{tokenSource: tokenSource}, nil
}

// Lease hydrates a clone for the supplied pull request and returns a Lease
// handle. The clone's working tree is checked out at the resource's head SHA.
// Callers must invoke Return to release the clone back to the pool.
func (m *Manager) Lease(ctx context.Context, res *prreconciler.Resource) (*Lease, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}

	cl, err := m.acquireClone(ctx, res)
	if err != nil {
		return nil, err
	}

	if err := m.prepareClone(ctx, cl, res); err != nil {
		clog.FromContext(ctx).Warnf("Discarding clone after prepare failure: %v", err)
		m.discardClone(cl)
		return nil, err
	}

	return &Lease{
		manager: m,
		clone:   cl,
		sha:     res.HeadSHA,
	}, nil
}

// acquireClone returns a clone from the pool or creates a new one if the pool
// is empty. Clones are taken from the front of the pool while releaseClone
// appends to the back, so recently returned clones are not immediately
// reused and problematic ones age out.
func (m *Manager) acquireClone(ctx context.Context, res *prreconciler.Resource) (*clone, error) {
	m.mu.Lock()
	if n := len(m.available); n > 0 {
		cl := m.available[0]
		m.available = m.available[1:]
		m.mu.Unlock()
		return cl, nil
	}
	m.mu.Unlock()

	return m.createClone(ctx, res)
}

func (m *Manager) createClone(ctx context.Context, res *prreconciler.Resource) (*clone, error) {
	dir, err := os.MkdirTemp("", cloneDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}

	remote := repoURL(res)
	clog.FromContext(ctx).Infof("Cloning repository %s into %s", remote, dir)

	auth, err := m.authForRemote()
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("getting token: %w", err)
	}

	repo, err := git.PlainClone(dir, false, &git.CloneOptions{
		URL:  remote,
		Auth: auth,
	})
	if err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("cloning repository: %w", err)
	}

	return &clone{path: dir, repo: repo}, nil
}

// prepareClone resets the clone, fetches the pull request's head ref, and
// checks out the triggering commit. A head SHA that cannot be resolved (for
// example after a force push) fails the prepare; the run for the newer
// event will materialize the newer commit.
func (m *Manager) prepareClone(ctx context.Context, cl *clone, res *prreconciler.Resource) error {
	repo := cl.repo
	if repo == nil {
		var err error
		repo, err = git.PlainOpen(cl.path)
		if err != nil {
			return fmt.Errorf("opening repo: %w", err)
		}
		cl.repo = repo
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting worktree: %w", err)
	}

	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning worktree: %w", err)
	}

	auth, err := m.authForRemote()
	if err != nil {
		return fmt.Errorf("getting token: %w", err)
	}

	// GitHub exposes every pull request's head as refs/pull/<n>/head on the
	// base repository, which also covers heads living in forks.
	prRef := fmt.Sprintf("refs/pull/%d/head", res.Number)
	fetchOpts := &git.FetchOptions{
		RefSpecs: []gitconfig.RefSpec{gitconfig.RefSpec(fmt.Sprintf("+%s:refs/remotes/origin/pr/%d", prRef, res.Number))},
		Auth:     auth,
	}

	clog.FromContext(ctx).Infof("Fetching %s", prRef)
	if err := repo.Fetch(fetchOpts); err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching %s: %w", prRef, err)
	}

	hash := plumbing.NewHash(res.HeadSHA)
	if _, err := repo.CommitObject(hash); err != nil {
		return fmt.Errorf("resolving commit %s: %w", res.HeadSHA, err)
	}

	if err := worktree.Checkout(&git.CheckoutOptions{Hash: hash, Force: true}); err != nil {
		return fmt.Errorf("checking out %s: %w", res.HeadSHA, err)
	}

	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("getting worktree status: %w", err)
	}
	if !status.IsClean() {
		return errors.New("worktree is not clean after checkout")
	}

	return nil
}

func (m *Manager) resetClone(cl *clone) error {
	worktree, err := cl.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}

	if err := worktree.Reset(&git.ResetOptions{Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting worktree: %w", err)
	}

	if err := worktree.Clean(&git.CleanOptions{Dir: true}); err != nil {
		return fmt.Errorf("cleaning worktree: %w", err)
	}

	return nil
}

// releaseClone returns a clone to the back of the pool. Combined with
// acquireClone taking from the front, this prevents churning.
func (m *Manager) releaseClone(cl *clone) {
	m.mu.Lock()
	m.available = append(m.available, cl)
	m.mu.Unlock()
}

func (m *Manager) discardClone(cl *clone) {
	os.RemoveAll(cl.path)
}

func (m *Manager) authForRemote() (*githttp.BasicAuth, error) {
	token, err := m.tokenSource.Token()
	if err != nil {
		return nil, err
	}

	return &githttp.BasicAuth{
		Username: "unused-when-using-access-tokens",
		Password: token.AccessToken,
	}, nil
}

func defaultRemoteURL(res *prreconciler.Resource) string {
	return fmt.Sprintf("https://github.com/%s/%s", res.Owner, res.Repo)
}

// ID returns a clone ID based on the underlying working tree path.
func (l *Lease) ID() string {
	return filepath.Base(l.clone.path)
}

// Repo returns the underlying git repository for this lease.
func (l *Lease) Repo() *git.Repository {
	return l.clone.repo
}

// WorkingTree returns the absolute path to the lease's working directory.
func (l *Lease) WorkingTree() string {
	return l.clone.path
}

// SHA returns the commit hash currently checked out by the lease.
func (l *Lease) SHA() string {
	return l.sha
}

// Return resets the working tree and places the clone back into the
// manager's pool. Once Return succeeds, the lease should be considered
// invalid.
func (l *Lease) Return(ctx context.Context) error {
	if err := l.manager.resetClone(l.clone); err != nil {
		l.manager.discardClone(l.clone)
		l.clone = nil
		return err
	}

	l.manager.releaseClone(l.clone)
	l.clone = nil
	l.manager = nil
	l.sha = ""

	return nil
}
