/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package main runs the blackbird webhook service: it receives pull_request
// events, checks qualifying heads with the pinned formatter, and annotates
// diffs with suggested fixes.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chainguard.dev/blackbird/reconcilers/blackcheck"
	"chainguard.dev/blackbird/reconcilers/prreconciler"
	"chainguard.dev/blackbird/reconcilers/prreconciler/clonemanager"
	"chainguard.dev/blackbird/trigger"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v84/github"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
)

type config struct {
	Port        int `env:"PORT,default=8080"`
	MetricsPort int `env:"METRICS_PORT,default=2112"`

	// WebhookSecret validates delivery signatures. Empty disables validation.
	WebhookSecret string `env:"WEBHOOK_SECRET"`

	// GitHubToken authenticates as a user or bot account. Either this or the
	// App credentials below must be set.
	GitHubToken string `env:"GITHUB_TOKEN"`

	// GitHub App credentials, used when GitHubToken is unset.
	AppID             int64  `env:"GITHUB_APP_ID"`
	AppInstallationID int64  `env:"GITHUB_APP_INSTALLATION_ID"`
	AppPrivateKeyPath string `env:"GITHUB_APP_PRIVATE_KEY_PATH"`

	// PolicyPath points at the YAML policy document. Empty uses defaults.
	PolicyPath string `env:"POLICY_PATH"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	policy := trigger.DefaultPolicy()
	if cfg.PolicyPath != "" {
		var err error
		policy, err = trigger.LoadPolicy(cfg.PolicyPath)
		if err != nil {
			clog.FatalContextf(ctx, "loading policy: %v", err)
		}
	}

	gh, ts, err := newGitHubClient(ctx, &cfg)
	if err != nil {
		clog.FatalContextf(ctx, "creating GitHub client: %v", err)
	}

	cloneMeta := clonemanager.NewMeta(ctx, func(context.Context, string, string) (oauth2.TokenSource, error) {
		return ts, nil
	})

	reconciler, err := blackcheck.New(policy, cloneMeta)
	if err != nil {
		clog.FatalContextf(ctx, "creating reconciler: %v", err)
	}

	handler := prreconciler.NewHandler(ctx, policy, []byte(cfg.WebhookSecret), gh, reconciler.Reconcile)

	mux := http.NewServeMux()
	mux.Handle("/webhook", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, "ok")
	})

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		clog.InfoContextf(egCtx, "Serving %q checks on port %d", policy.Workflow, cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-egCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(egCtx), 30*time.Second)
		defer cancel()
		handler.Wait()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return metricsSrv.Shutdown(shutdownCtx)
	})

	if err := eg.Wait(); err != nil {
		clog.FatalContextf(ctx, "server failed: %v", err)
	}
}

// newGitHubClient builds the API client and a matching git token source from
// either a static token or GitHub App credentials.
func newGitHubClient(ctx context.Context, cfg *config) (*github.Client, oauth2.TokenSource, error) {
	if cfg.GitHubToken != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
		return github.NewClient(oauth2.NewClient(ctx, ts)), ts, nil
	}

	if cfg.AppID == 0 || cfg.AppInstallationID == 0 || cfg.AppPrivateKeyPath == "" {
		return nil, nil, errors.New("either GITHUB_TOKEN or GitHub App credentials must be set")
	}

	itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, cfg.AppID, cfg.AppInstallationID, cfg.AppPrivateKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("creating installation transport: %w", err)
	}

	return github.NewClient(&http.Client{Transport: itr}), &installationTokenSource{ctx: ctx, transport: itr}, nil
}

// installationTokenSource adapts a ghinstallation transport to oauth2 for
// git-over-HTTPS auth.
type installationTokenSource struct {
	ctx       context.Context
	transport *ghinstallation.Transport
}

func (s *installationTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.transport.Token(s.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{AccessToken: token}, nil
}
