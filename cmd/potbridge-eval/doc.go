// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// potbridge-eval evaluates one atomic configuration through the
// configured transport strategy and prints the energy and per-atom
// forces.
//
// The configuration comes from a scene file: species symbols, one
// position per atom, and an optional contributing mask. Symbols are
// resolved to species codes against the active model's declared
// species list. With --trace the call (request, response, timing) is
// also captured for later inspection.
//
//	potbridge-eval --config potbridge.yaml --scene dimer.yaml
//	potbridge-eval --config embedded.yaml --scene dimer.yaml --trace run.trace
package main
