// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package envinfo inspects a model directory for a declared
// dependency manifest and turns it into actionable guidance.
//
// This is triggered only when the interpreter bridge fails to load or
// evaluate a model. It never alters control flow and never parses
// manifest content for correctness; it only enriches the error
// already being raised, so an operator can fix the model environment
// without source-level debugging.
package envinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind identifies which flavor of dependency manifest a model ships.
// The three kinds are mutually exclusive in a well-formed model
// directory; when several are present the highest-priority one wins.
type Kind int

const (
	// KindExactPin is a fully pinned environment export: recreating
	// it reproduces the model author's environment exactly.
	KindExactPin Kind = iota + 1

	// KindRequirements is a loose requirements list: versions may
	// float within the declared constraints.
	KindRequirements

	// KindDeclared is a minimal declared-dependency set derived from
	// the model source: names only, no versions.
	KindDeclared
)

func (k Kind) String() string {
	switch k {
	case KindExactPin:
		return "exact-pin environment"
	case KindRequirements:
		return "loose requirements list"
	case KindDeclared:
		return "minimal declared dependency set"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Manifest filenames, checked in priority order.
const (
	exactPinFile     = "model_env.lock.yml"
	requirementsFile = "model_env.requirements.txt"
	declaredFile     = "model_env.deps.txt"
)

// Manifest is a discovered dependency manifest.
type Manifest struct {
	Kind Kind
	Path string
}

// instruction returns the install guidance for the manifest kind.
func (m Manifest) instruction() string {
	switch m.Kind {
	case KindExactPin:
		return fmt.Sprintf("recreate the pinned environment from %q", m.Path)
	case KindRequirements:
		return fmt.Sprintf("install the listed requirements from %q", m.Path)
	default:
		return fmt.Sprintf("inspect %q and install the listed packages", m.Path)
	}
}

// Detect searches dir for at most one dependency manifest, in fixed
// priority order: exact-pin, then loose-requirements, then
// minimal-declared-set.
func Detect(dir string) (Manifest, bool) {
	candidates := []struct {
		kind Kind
		name string
	}{
		{KindExactPin, exactPinFile},
		{KindRequirements, requirementsFile},
		{KindDeclared, declaredFile},
	}
	for _, c := range candidates {
		path := filepath.Join(dir, c.name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return Manifest{Kind: c.kind, Path: path}, true
		}
	}
	return Manifest{}, false
}

// Describe returns the guidance block for a model directory: the
// manifest kind, its install instruction, and its full contents, or
// a plain statement that no manifest exists. The result is appended
// to load and evaluate errors by the interpreter bridge.
func Describe(dir string) string {
	manifest, found := Detect(dir)
	if !found {
		return fmt.Sprintf("no dependency manifest found in %s", dir)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "detected %s at %s\n", manifest.Kind, manifest.Path)
	fmt.Fprintf(&b, "suggestion: %s\n", manifest.instruction())

	contents, err := os.ReadFile(manifest.Path)
	if err != nil {
		fmt.Fprintf(&b, "(could not read manifest: %v)", err)
		return b.String()
	}
	b.WriteString("---- manifest ----\n")
	b.Write(contents)
	if len(contents) > 0 && contents[len(contents)-1] != '\n' {
		b.WriteByte('\n')
	}
	b.WriteString("------------------")
	return b.String()
}
