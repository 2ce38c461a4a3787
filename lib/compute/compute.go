// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compute defines the request/response types exchanged between
// a simulation host and a potential-evaluation routine, and the
// Transport interface both delivery strategies implement.
//
// A Request describes one atomic configuration: how many atoms, which
// species each one is, where each one sits, and which atoms contribute
// to the reported energy. A Response carries the total energy over
// contributing atoms and one force vector per atom, including
// non-contributing ("ghost") atoms, whose forces are physically
// required for correct gradients.
package compute

import (
	"context"
	"fmt"
)

// Request is one force/energy evaluation request. All slices are
// host-owned; the bridge reads them but never retains or mutates them.
type Request struct {
	// AtomCount is the number of atoms in the configuration,
	// including non-contributing ghost atoms. Zero is legal.
	AtomCount int32

	// SpeciesCodes holds one zero-based index per atom into the
	// active model's declared species list. Length = AtomCount.
	SpeciesCodes []int32

	// Positions holds row-major atom coordinates (x, y, z per atom),
	// in units consistent with the active model. Length = 3×AtomCount.
	Positions []float64

	// Contributing marks which atoms enter the energy sum (1) and
	// which are ghosts (0). Nil means every atom contributes.
	// When non-nil, length = AtomCount.
	Contributing []int32
}

// Validate checks the length invariants between AtomCount and the
// per-atom slices. A Request that fails Validate must never reach a
// transport: a shape mismatch on the wire silently corrupts the
// remote end's parse.
func (r *Request) Validate() error {
	n := int(r.AtomCount)
	if n < 0 {
		return fmt.Errorf("atom count %d is negative", n)
	}
	if len(r.SpeciesCodes) != n {
		return fmt.Errorf("species codes length %d does not match atom count %d", len(r.SpeciesCodes), n)
	}
	if len(r.Positions) != 3*n {
		return fmt.Errorf("positions length %d does not match 3×atom count (%d)", len(r.Positions), 3*n)
	}
	if r.Contributing != nil && len(r.Contributing) != n {
		return fmt.Errorf("contributing mask length %d does not match atom count %d", len(r.Contributing), n)
	}
	return nil
}

// Response is the result of one evaluation.
type Response struct {
	// Energy is the total energy summed over contributing atoms only.
	Energy float64

	// Forces holds one row-major force vector per atom, ghosts
	// included. Length = 3×AtomCount of the originating request.
	Forces []float64
}

// ModelHandle describes a loaded potential model. Created once when
// the interpreter bridge loads the target; immutable afterward.
type ModelHandle struct {
	// InfluenceDistance is the maximum interaction cutoff the model
	// requires from the host's neighbor construction.
	InfluenceDistance float64

	// Species is the model's declared species list, in the order that
	// defines the species_code → symbol mapping.
	Species []string

	// Fingerprint is the hex BLAKE3 digest of the model file,
	// recorded for provenance in logs and trace captures.
	Fingerprint string

	// Path is the model file the handle was loaded from.
	Path string
}

// SpeciesCode returns the zero-based code for a species symbol, or an
// error if the model does not declare it.
func (h *ModelHandle) SpeciesCode(symbol string) (int32, error) {
	for i, s := range h.Species {
		if s == symbol {
			return int32(i), nil
		}
	}
	return 0, fmt.Errorf("species %q is not in the declared species list %v", symbol, h.Species)
}

// Transport delivers one evaluation request to a potential-evaluation
// routine and returns its result. Implementations are synchronous:
// each call blocks until a response arrives, a configured timeout
// expires, or a fatal error occurs. There are no retries and no
// mid-call cancellation. The context is consulted only before
// irrevocable work starts (connection establishment, lock
// acquisition), never to abort I/O already in flight.
type Transport interface {
	Evaluate(ctx context.Context, req *Request) (*Response, error)
	Close() error
}
