// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/potbridge/lib/compute"
	"github.com/bureau-foundation/potbridge/lib/config"
)

// Plugin is the thin adapter between a host plugin's lifecycle
// (create / compute / refresh / destroy) and one Bridge. The host
// owns every buffer on both sides: Plugin reads the input slices and
// writes results into caller-provided output storage, never
// allocating host-visible output itself.
type Plugin struct {
	bridge *Bridge
}

// NewPlugin builds the bridge for a host plugin from its
// configuration artifact. This is the create step of the host
// lifecycle.
func NewPlugin(cfg *config.Config, logger *slog.Logger) (*Plugin, error) {
	b, err := New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &Plugin{bridge: b}, nil
}

// InfluenceDistance returns the cutoff the host must honor in its
// neighbor construction.
func (p *Plugin) InfluenceDistance() float64 {
	return p.bridge.Handle().InfluenceDistance
}

// Species returns the declared species list defining the
// species_code → symbol mapping.
func (p *Plugin) Species() []string {
	return p.bridge.Handle().Species
}

// Compute evaluates one configuration. speciesCodes, positions, and
// contributing are host-owned input buffers (contributing may be nil:
// all atoms contribute); energy and forces are host-owned output
// buffers, with forces exactly 3×atomCount long.
func (p *Plugin) Compute(ctx context.Context, atomCount int32, speciesCodes []int32,
	positions []float64, contributing []int32, energy *float64, forces []float64) error {

	if energy == nil {
		return fmt.Errorf("host energy buffer is nil")
	}
	if len(forces) != 3*int(atomCount) {
		return fmt.Errorf("host forces buffer has length %d, want %d", len(forces), 3*atomCount)
	}

	req := &compute.Request{
		AtomCount:    atomCount,
		SpeciesCodes: speciesCodes,
		Positions:    positions,
		Contributing: contributing,
	}
	resp, err := p.bridge.Evaluate(ctx, req)
	if err != nil {
		return err
	}

	*energy = resp.Energy
	copy(forces, resp.Forces)
	return nil
}

// Refresh re-reports the influence distance. The bridge's model
// metadata is immutable, so refresh is a read, not a reload.
func (p *Plugin) Refresh() float64 {
	return p.bridge.Handle().InfluenceDistance
}

// Destroy tears down the bridge. This is the destroy step of the
// host lifecycle; the Plugin must not be used afterward.
func (p *Plugin) Destroy() error {
	return p.bridge.Close()
}
