/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package trigger

import (
	"errors"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Defaults applied to fields omitted from the policy document.
const (
	DefaultWorkflow      = "black"
	DefaultPythonVersion = "3.8"
	DefaultBlackVersion  = "~= 22.3.0"
	DefaultToolName      = "black"
)

// DefaultBranches is the base-branch allow-list used when the policy omits one.
var DefaultBranches = []string{"master", "dev"}

// DefaultPaths is the changed-path glob list used when the policy omits one.
var DefaultPaths = []string{"**/*.py"}

// Policy describes when a formatting check runs and how the formatter is
// invoked. The zero value is not usable; construct one with DefaultPolicy or
// LoadPolicy.
type Policy struct {
	// Workflow names the check. It tags review suggestions and forms part of
	// the concurrency group key, so two policies with distinct workflow names
	// never cancel each other.
	Workflow string `yaml:"workflow"`

	On struct {
		// Branches is the allow-list of base branches.
		Branches []string `yaml:"branches"`
		// Paths is the list of globs matched against changed file paths.
		Paths []string `yaml:"paths"`
	} `yaml:"on"`

	// PythonVersion is the interpreter version provisioned for the formatter.
	PythonVersion string `yaml:"python-version"`

	Black struct {
		// Options holds extra command-line options passed to black.
		Options string `yaml:"options"`
		// Version is a pip version specifier for the pinned formatter.
		Version string `yaml:"version"`
		// Summary enables the formatter's summary output. Off by default.
		Summary bool `yaml:"summary"`
	} `yaml:"black"`

	// ToolName labels the published review suggestions.
	ToolName string `yaml:"tool-name"`
}

// DefaultPolicy returns a Policy with every field set to its default.
func DefaultPolicy() *Policy {
	p := &Policy{}
	p.applyDefaults()
	return p
}

// LoadPolicy reads a YAML policy document from path and applies defaults for
// any omitted fields.
func LoadPolicy(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy: %w", err)
	}
	return ParsePolicy(data)
}

// ParsePolicy parses a YAML policy document and applies defaults for any
// omitted fields.
func ParsePolicy(data []byte) (*Policy, error) {
	p := &Policy{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing policy: %w", err)
	}
	p.applyDefaults()
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Policy) applyDefaults() {
	if p.Workflow == "" {
		p.Workflow = DefaultWorkflow
	}
	if len(p.On.Branches) == 0 {
		p.On.Branches = append([]string(nil), DefaultBranches...)
	}
	if len(p.On.Paths) == 0 {
		p.On.Paths = append([]string(nil), DefaultPaths...)
	}
	if p.PythonVersion == "" {
		p.PythonVersion = DefaultPythonVersion
	}
	if p.Black.Version == "" {
		p.Black.Version = DefaultBlackVersion
	}
	if p.ToolName == "" {
		p.ToolName = DefaultToolName
	}
}

func (p *Policy) validate() error {
	for _, b := range p.On.Branches {
		if b == "" {
			return errors.New("policy branch cannot be empty")
		}
	}
	for _, g := range p.On.Paths {
		if g == "" {
			return errors.New("policy path glob cannot be empty")
		}
		if !doublestar.ValidatePattern(g) {
			return fmt.Errorf("invalid path glob %q", g)
		}
	}
	return nil
}
