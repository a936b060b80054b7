/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pyenv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/chainguard-dev/clog"
)

const venvDirPrefix = "blackbird-venv-"

// Provisioner creates virtual environments for a fixed interpreter version.
type Provisioner struct {
	version    string
	candidates []string
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithCandidates overrides the interpreter binary names probed during
// provisioning, in preference order.
func WithCandidates(names ...string) Option {
	return func(p *Provisioner) {
		p.candidates = names
	}
}

// New constructs a Provisioner for the given interpreter version, e.g. "3.8".
func New(version string, opts ...Option) (*Provisioner, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return nil, errors.New("interpreter version cannot be empty")
	}

	p := &Provisioner{
		version: version,
		candidates: []string{
			"python" + version,
			"python3",
			"python",
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Env is a provisioned virtual environment.
type Env struct {
	root string
}

// Provision locates an interpreter matching the configured version and
// creates a fresh virtual environment with it. The environment lives in a
// temporary directory outside any working tree; callers must Close it.
func (p *Provisioner) Provision(ctx context.Context) (*Env, error) {
	interp, err := p.findInterpreter(ctx)
	if err != nil {
		return nil, err
	}

	dir, err := os.MkdirTemp("", venvDirPrefix)
	if err != nil {
		return nil, fmt.Errorf("creating venv dir: %w", err)
	}

	clog.FromContext(ctx).Infof("Creating virtualenv with %s in %s", interp, dir)
	if _, err := runCommand(ctx, interp, "-m", "venv", dir); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("creating virtualenv: %w", err)
	}

	return &Env{root: dir}, nil
}

// findInterpreter probes the candidate binaries in order and returns the
// first whose reported version matches the configured one.
func (p *Provisioner) findInterpreter(ctx context.Context) (string, error) {
	var probed []string
	for _, name := range p.candidates {
		path, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		out, err := runCommand(ctx, path, "--version")
		if err != nil {
			continue
		}
		got := parseVersionOutput(out)
		probed = append(probed, fmt.Sprintf("%s (%s)", path, got))
		if matchesVersion(got, p.version) {
			return path, nil
		}
	}
	if len(probed) == 0 {
		return "", fmt.Errorf("no python interpreter found (tried %s)", strings.Join(p.candidates, ", "))
	}
	return "", fmt.Errorf("no interpreter matching version %s (probed %s)", p.version, strings.Join(probed, ", "))
}

// Install runs pip inside the environment to install a tool pinned by a
// version specifier, e.g. Install(ctx, "black", "~= 22.3.0").
func (e *Env) Install(ctx context.Context, pkg, constraint string) error {
	spec := normalizeSpec(pkg, constraint)
	clog.FromContext(ctx).Infof("Installing %s", spec)
	if _, err := runCommand(ctx, e.Bin("pip"), "install", "--quiet", spec); err != nil {
		return fmt.Errorf("installing %s: %w", spec, err)
	}
	return nil
}

// Bin returns the path of a binary inside the environment.
func (e *Env) Bin(name string) string {
	return filepath.Join(e.root, "bin", name)
}

// Root returns the environment's directory.
func (e *Env) Root() string {
	return e.root
}

// Close removes the environment.
func (e *Env) Close() error {
	return os.RemoveAll(e.root)
}

// runCommand executes a command and returns its combined output. Failures
// include the trailing output, which is where python and pip put their
// diagnostics.
func runCommand(ctx context.Context, name string, args ...string) (string, error) {
	var buf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	if err := cmd.Run(); err != nil {
		return buf.String(), fmt.Errorf("%s: %w: %s", name, err, lastLines(buf.String(), 5))
	}
	return buf.String(), nil
}

// parseVersionOutput extracts "3.8.10" from "Python 3.8.10".
func parseVersionOutput(out string) string {
	fields := strings.Fields(strings.TrimSpace(out))
	if len(fields) < 2 || fields[0] != "Python" {
		return ""
	}
	return fields[1]
}

// matchesVersion reports whether a full interpreter version satisfies the
// configured one, which may omit the patch component.
func matchesVersion(got, want string) bool {
	if got == "" {
		return false
	}
	return got == want || strings.HasPrefix(got, want+".")
}

// normalizeSpec joins a package name and pip version specifier into a single
// requirement argument, e.g. ("black", "~= 22.3.0") -> "black~=22.3.0".
func normalizeSpec(pkg, constraint string) string {
	constraint = strings.ReplaceAll(constraint, " ", "")
	return pkg + constraint
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
