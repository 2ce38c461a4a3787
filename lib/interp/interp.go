// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package interp evaluates compute requests against a potential model
// embedded in a Starlark interpreter in this process.
//
// A model is a single Starlark file that declares its entry point
// with the predeclared potential_model builtin:
//
//	def evaluate(species, positions, contributing):
//	    ...
//	    return energy, forces
//
//	model = potential_model(
//	    evaluate = evaluate,
//	    influence_distance = 3.77,
//	    species = ("Si",),
//	)
//
// The interpreter is not safe for unsynchronized concurrent entry, so
// every call into it, load and evaluate alike, holds interpMu, the
// single process-wide interpreter lock. The lock is held for exactly
// one full call (argument construction, invocation, result
// extraction) and never across calls.
//
// The embedding deployment assumes one target potential per process.
// That is a deployment assumption, not an enforced limit: tests may
// load several bridges in one process, and all of them serialize on
// the same interpreter lock.
package interp

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/bureau-foundation/potbridge/lib/compute"
	"github.com/bureau-foundation/potbridge/lib/envinfo"
	"github.com/bureau-foundation/potbridge/lib/fingerprint"
	"github.com/bureau-foundation/potbridge/lib/workdir"
)

// interpMu is the process-wide interpreter lock. Only one goroutine
// may execute interpreter-bound code at a time, regardless of how
// many bridges exist or how many goroutines call Evaluate. This is a
// correctness requirement of the embedded interpreter, not an
// optimization opportunity.
var interpMu sync.Mutex

// markerKey is the validity marker every model declaration carries.
// The potential_model builtin sets it to True; its absence or a false
// value aborts loading.
const markerKey = "is_model"

// Declaration field names.
const (
	evaluateKey  = "evaluate"
	influenceKey = "influence_distance"
	speciesKey   = "species"
)

// Bridge is the in-process transport strategy: it holds one loaded
// model callable and implements compute.Transport against it.
type Bridge struct {
	handle   compute.ModelHandle
	evaluate starlark.Callable
	dir      string
	logger   *slog.Logger
}

var _ compute.Transport = (*Bridge)(nil)

// Load executes the Starlark model file at path and validates its
// declaration. Validation order: the entry point must be invocable,
// the validity marker must be true, the influence distance must be a
// number, and the species list must be a non-empty sequence of
// strings. Each failure produces a targeted error enriched with the
// model directory's dependency-manifest guidance.
//
// The script runs with its own directory as the process working
// directory (under the workdir guard), so it can resolve parameter
// files by relative path.
func Load(path string, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving model path %s: %w", path, err)
	}
	dir := filepath.Dir(abs)

	digest, err := fingerprint.File(abs)
	if err != nil {
		return nil, loadError(dir, abs, err)
	}

	var globals starlark.StringDict
	execErr := workdir.In(dir, func() error {
		interpMu.Lock()
		defer interpMu.Unlock()

		thread := &starlark.Thread{
			Name: "potential-load",
			Print: func(_ *starlark.Thread, msg string) {
				logger.Info("model script output", "msg", msg)
			},
		}
		predeclared := starlark.StringDict{
			"potential_model": starlark.NewBuiltin("potential_model", potentialModelBuiltin),
		}
		var err error
		globals, err = starlark.ExecFileOptions(&syntax.FileOptions{}, thread, filepath.Base(abs), nil, predeclared)
		return err
	})
	if execErr != nil {
		return nil, loadError(dir, abs, fmt.Errorf("executing model script: %w", execErr))
	}

	decl, err := findDeclaration(globals)
	if err != nil {
		return nil, loadError(dir, abs, err)
	}

	bridge, err := validateDeclaration(decl)
	if err != nil {
		return nil, loadError(dir, abs, err)
	}
	bridge.handle.Path = abs
	bridge.handle.Fingerprint = digest
	bridge.dir = dir
	bridge.logger = logger

	logger.Info("potential model loaded",
		"path", abs,
		"fingerprint", digest,
		"influence_distance", bridge.handle.InfluenceDistance,
		"species", bridge.handle.Species)
	return bridge, nil
}

// Handle returns the immutable model metadata.
func (b *Bridge) Handle() compute.ModelHandle { return b.handle }

// Evaluate runs one compute call against the loaded model. The
// interpreter lock is held for the minimal duration of the call and
// released before returning. Species and positions are passed to the
// script as views over the request buffers; an absent contributing
// mask is materialized as all ones before the call.
func (b *Bridge) Evaluate(ctx context.Context, req *compute.Request) (*compute.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid compute request: %w", err)
	}
	// Once the lock is acquired the call runs to completion; the
	// context is consulted only before that point.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n := int(req.AtomCount)
	contributing := req.Contributing
	if contributing == nil {
		contributing = make([]int32, n)
		for i := range contributing {
			contributing[i] = 1
		}
	}

	interpMu.Lock()
	defer interpMu.Unlock()

	thread := &starlark.Thread{
		Name: "potential-evaluate",
		Print: func(_ *starlark.Thread, msg string) {
			b.logger.Info("model output", "msg", msg)
		},
	}
	args := starlark.Tuple{
		&intVector{name: "species_view", data: req.SpeciesCodes},
		&matrixView{data: req.Positions, rows: n},
		&intVector{name: "contributing_view", data: contributing},
	}

	result, err := starlark.Call(thread, b.evaluate, args, nil)
	if err != nil {
		return nil, fmt.Errorf("evaluating model %s: %w\n%s", b.handle.Path, err, envinfo.Describe(b.dir))
	}

	resp, err := extractResponse(result, n)
	if err != nil {
		return nil, fmt.Errorf("extracting result from model %s: %w", b.handle.Path, err)
	}
	return resp, nil
}

// Close satisfies compute.Transport. The interpreter is process-wide
// state; there is nothing per-bridge to release.
func (b *Bridge) Close() error { return nil }

// potentialModelBuiltin implements the predeclared potential_model
// helper. It performs no validation; it only tags the declaration so
// Load can find it and validate with targeted errors.
func potentialModelBuiltin(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 0 {
		return nil, fmt.Errorf("%s: accepts keyword arguments only", fn.Name())
	}
	decl := starlark.NewDict(len(kwargs) + 1)
	if err := decl.SetKey(starlark.String(markerKey), starlark.True); err != nil {
		return nil, err
	}
	for _, pair := range kwargs {
		if err := decl.SetKey(pair[0], pair[1]); err != nil {
			return nil, err
		}
	}
	return decl, nil
}

// findDeclaration scans module globals for exactly one tagged model
// declaration (a dict carrying the validity marker key).
func findDeclaration(globals starlark.StringDict) (*starlark.Dict, error) {
	var found []*starlark.Dict
	var names []string
	for _, name := range globals.Keys() {
		dict, ok := globals[name].(*starlark.Dict)
		if !ok {
			continue
		}
		if _, present, err := dict.Get(starlark.String(markerKey)); err == nil && present {
			found = append(found, dict)
			names = append(names, name)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return nil, fmt.Errorf("no potential model declaration found; export one with potential_model(...)")
	default:
		return nil, fmt.Errorf("expected exactly one potential model declaration, found %d: %v", len(found), names)
	}
}

// validateDeclaration checks the declaration fields in order and
// builds the bridge skeleton. Each missing or malformed field aborts
// with its own diagnostic rather than a generic failure.
func validateDeclaration(decl *starlark.Dict) (*Bridge, error) {
	// (a) The entry point must be invocable.
	entry, present, err := decl.Get(starlark.String(evaluateKey))
	if err != nil || !present {
		return nil, fmt.Errorf("model declaration has no evaluate entry point; pass evaluate=... to potential_model")
	}
	callable, ok := entry.(starlark.Callable)
	if !ok {
		return nil, fmt.Errorf("model evaluate entry point is not invocable (got %s)", entry.Type())
	}

	// (b) The validity marker must be true.
	marker, _, err := decl.Get(starlark.String(markerKey))
	if err != nil {
		return nil, fmt.Errorf("reading model marker: %w", err)
	}
	if !bool(marker.Truth()) {
		return nil, fmt.Errorf("model marker is false; not a valid potential model declaration")
	}

	// (c) The influence distance must be declared and numeric.
	distValue, present, err := decl.Get(starlark.String(influenceKey))
	if err != nil || !present {
		return nil, fmt.Errorf("model declaration is missing influence_distance")
	}
	dist, ok := starlark.AsFloat(distValue)
	if !ok {
		return nil, fmt.Errorf("model influence_distance is not a number (got %s)", distValue.Type())
	}

	// (d) The species list must be a non-empty sequence of strings.
	speciesValue, present, err := decl.Get(starlark.String(speciesKey))
	if err != nil || !present {
		return nil, fmt.Errorf("model declaration is missing the species list")
	}
	species, err := stringSequence(speciesValue)
	if err != nil {
		return nil, fmt.Errorf("model species list: %w", err)
	}
	if len(species) == 0 {
		return nil, fmt.Errorf("model species list is empty")
	}

	return &Bridge{
		handle: compute.ModelHandle{
			InfluenceDistance: dist,
			Species:           species,
		},
		evaluate: callable,
	}, nil
}

// stringSequence converts a starlark sequence of strings to a Go
// slice.
func stringSequence(value starlark.Value) ([]string, error) {
	seq, ok := value.(starlark.Sequence)
	if !ok {
		return nil, fmt.Errorf("not a sequence (got %s)", value.Type())
	}
	result := make([]string, 0, seq.Len())
	iter := seq.Iterate()
	defer iter.Done()
	var elem starlark.Value
	for iter.Next(&elem) {
		s, ok := starlark.AsString(elem)
		if !ok {
			return nil, fmt.Errorf("element %d is not a string (got %s)", len(result), elem.Type())
		}
		result = append(result, s)
	}
	return result, nil
}

// extractResponse validates the model's return value: a pair of
// (energy, forces) where energy converts to a float64 and forces is
// exactly atomCount rows of exactly 3 numbers. Anything else is a
// fatal marshaling error: the downstream host buffers are fixed-size
// and cannot absorb a reshape.
func extractResponse(result starlark.Value, atomCount int) (*compute.Response, error) {
	pair, ok := result.(starlark.Indexable)
	if !ok || pair.Len() != 2 {
		return nil, fmt.Errorf("model must return (energy, forces), got %s", result.Type())
	}

	energy, ok := starlark.AsFloat(pair.Index(0))
	if !ok {
		return nil, fmt.Errorf("returned energy is not convertible to a float (got %s)", pair.Index(0).Type())
	}

	forcesValue := pair.Index(1)
	forces, ok := forcesValue.(starlark.Indexable)
	if !ok {
		return nil, fmt.Errorf("returned forces are not indexable (got %s)", forcesValue.Type())
	}
	if forces.Len() != atomCount {
		return nil, fmt.Errorf("returned forces have shape (%d, ?), want (%d, 3)", forces.Len(), atomCount)
	}

	out := make([]float64, 3*atomCount)
	for i := range atomCount {
		row, ok := forces.Index(i).(starlark.Indexable)
		if !ok || row.Len() != 3 {
			rowLen := -1
			if ok {
				rowLen = row.Len()
			}
			return nil, fmt.Errorf("returned forces row %d has length %d, want 3 (shape must be (%d, 3))", i, rowLen, atomCount)
		}
		for j := range 3 {
			f, ok := starlark.AsFloat(row.Index(j))
			if !ok {
				return nil, fmt.Errorf("returned force component (%d, %d) is not a number (got %s)", i, j, row.Index(j).Type())
			}
			out[3*i+j] = f
		}
	}

	return &compute.Response{Energy: energy, Forces: out}, nil
}

// loadError wraps a load failure with the model directory's
// dependency-manifest guidance. The guidance never alters control
// flow; it only enriches the error already being raised.
func loadError(dir, path string, err error) error {
	return fmt.Errorf("loading model %s: %w\n%s", path, err, envinfo.Describe(dir))
}
