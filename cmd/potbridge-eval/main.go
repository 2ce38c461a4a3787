// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/potbridge/lib/bridge"
	"github.com/bureau-foundation/potbridge/lib/compute"
	"github.com/bureau-foundation/potbridge/lib/config"
)

func main() {
	os.Exit(run())
}

// scene is the YAML input describing one atomic configuration.
type scene struct {
	// Species holds one symbol per atom ("Si", "O", ...).
	Species []string `yaml:"species"`

	// Positions holds one [x, y, z] row per atom.
	Positions [][]float64 `yaml:"positions"`

	// Contributing optionally marks energy-contributing atoms (1)
	// versus ghosts (0). Absent means all contribute.
	Contributing []int32 `yaml:"contributing,omitempty"`
}

func run() int {
	flags := pflag.NewFlagSet("potbridge-eval", pflag.ContinueOnError)
	configPath := flags.String("config", "", "configuration artifact (default: $"+config.EnvVar+", then ./"+config.DefaultPath+")")
	scenePath := flags.String("scene", "", "scene file: species, positions, optional contributing mask")
	tracePath := flags.String("trace", "", "capture the call to this file (overrides the artifact's trace.path)")
	logLevel := flags.String("log-level", "warn", "log level: debug, info, warn, error")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "potbridge-eval: %v\n", err)
		return 2
	}
	if *scenePath == "" {
		fmt.Fprintln(os.Stderr, "potbridge-eval: --scene is required")
		return 2
	}

	logger, err := newLogger(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-eval: %v\n", err)
		return 2
	}

	cfg, err := config.Load(config.Resolve(*configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-eval: %v\n", err)
		return 1
	}
	if *tracePath != "" {
		cfg.Trace.Path = *tracePath
	}

	b, err := bridge.New(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-eval: %v\n", err)
		return 1
	}
	defer b.Close()

	req, err := loadScene(*scenePath, b.Handle())
	if err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-eval: %v\n", err)
		return 1
	}

	resp, err := b.Evaluate(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "potbridge-eval: %v\n", err)
		return 1
	}

	fmt.Printf("energy: %.12g\n", resp.Energy)
	for i := range int(req.AtomCount) {
		fmt.Printf("force %4d: %14.6e %14.6e %14.6e\n",
			i, resp.Forces[3*i], resp.Forces[3*i+1], resp.Forces[3*i+2])
	}
	return 0
}

// loadScene reads a scene file and resolves it into a compute request
// against the active model's species list.
func loadScene(path string, handle compute.ModelHandle) (*compute.Request, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scene %s: %w", path, err)
	}
	var s scene
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing scene %s: %w", path, err)
	}

	n := len(s.Species)
	if len(s.Positions) != n {
		return nil, fmt.Errorf("scene %s: %d species but %d positions", path, n, len(s.Positions))
	}
	if s.Contributing != nil && len(s.Contributing) != n {
		return nil, fmt.Errorf("scene %s: %d species but %d contributing flags", path, n, len(s.Contributing))
	}

	req := &compute.Request{
		AtomCount:    int32(n),
		SpeciesCodes: make([]int32, n),
		Positions:    make([]float64, 0, 3*n),
		Contributing: s.Contributing,
	}
	for i, symbol := range s.Species {
		code, err := handle.SpeciesCode(symbol)
		if err != nil {
			return nil, fmt.Errorf("scene %s: atom %d: %w", path, i, err)
		}
		req.SpeciesCodes[i] = code
	}
	for i, row := range s.Positions {
		if len(row) != 3 {
			return nil, fmt.Errorf("scene %s: position %d has %d components, want 3", path, i, len(row))
		}
		req.Positions = append(req.Positions, row...)
	}
	return req, nil
}

// newLogger builds a stderr text logger at the requested level.
func newLogger(level string) (*slog.Logger, error) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})), nil
}
