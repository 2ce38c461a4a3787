// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workdir provides a scoped working-directory change guarded
// by a process-wide lock.
//
// The working directory is process-global state, so any code that
// must run with a particular directory current (model scripts that
// resolve sibling files relative to themselves) has to exclude every
// other directory switch for the duration. In guarantees restoration
// on every exit path, including a panic in the callback.
package workdir

import (
	"fmt"
	"os"
	"sync"
)

// mu serializes all working-directory switches in the process.
var mu sync.Mutex

// In runs fn with dir as the process working directory. The previous
// directory is restored before In returns, whether fn succeeds,
// fails, or panics. Calls are serialized process-wide.
func In(dir string, fn func() error) error {
	mu.Lock()
	defer mu.Unlock()

	previous, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("reading current directory: %w", err)
	}
	if err := os.Chdir(dir); err != nil {
		return fmt.Errorf("entering %s: %w", dir, err)
	}
	defer func() {
		if err := os.Chdir(previous); err != nil {
			// The process is now in the wrong directory and there is
			// no caller that can fix it. Crash loudly rather than let
			// later relative paths resolve against the model dir.
			panic(fmt.Sprintf("workdir: restoring %s: %v", previous, err))
		}
	}()

	return fn()
}
