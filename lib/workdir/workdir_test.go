// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workdir

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

// sameDir compares two paths after symlink resolution; t.TempDir on
// some platforms hands back a path with symlinked components.
func sameDir(t *testing.T, a, b string) bool {
	t.Helper()
	ra, err := filepath.EvalSymlinks(a)
	if err != nil {
		t.Fatalf("resolving %s: %v", a, err)
	}
	rb, err := filepath.EvalSymlinks(b)
	if err != nil {
		t.Fatalf("resolving %s: %v", b, err)
	}
	return ra == rb
}

func TestInRunsInDirectory(t *testing.T) {
	before, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	dir := t.TempDir()

	var inside string
	err = In(dir, func() error {
		inside, err = os.Getwd()
		return err
	})
	if err != nil {
		t.Fatalf("In: %v", err)
	}
	if !sameDir(t, inside, dir) {
		t.Errorf("callback ran in %s, want %s", inside, dir)
	}

	after, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if after != before {
		t.Errorf("directory not restored: %s, want %s", after, before)
	}
}

func TestInRestoresOnError(t *testing.T) {
	before, _ := os.Getwd()
	wantErr := errors.New("callback failed")

	err := In(t.TempDir(), func() error { return wantErr })
	if !errors.Is(err, wantErr) {
		t.Fatalf("In returned %v, want the callback error", err)
	}

	after, _ := os.Getwd()
	if after != before {
		t.Errorf("directory not restored after error: %s, want %s", after, before)
	}
}

func TestInRestoresOnPanic(t *testing.T) {
	before, _ := os.Getwd()

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		In(t.TempDir(), func() error { panic("model blew up") })
	}()

	after, _ := os.Getwd()
	if after != before {
		t.Errorf("directory not restored after panic: %s, want %s", after, before)
	}
}

func TestInFailsForMissingDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent")
	err := In(missing, func() error {
		t.Error("callback must not run when the chdir fails")
		return nil
	})
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestInSerializesSwitches(t *testing.T) {
	resolve := func(path string) string {
		resolved, err := filepath.EvalSymlinks(path)
		if err != nil {
			t.Fatalf("resolving %s: %v", path, err)
		}
		return resolved
	}
	dirs := []string{resolve(t.TempDir()), resolve(t.TempDir())}

	var wg sync.WaitGroup
	for i := range 16 {
		dir := dirs[i%2]
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := In(dir, func() error {
				got, err := os.Getwd()
				if err != nil {
					return err
				}
				if got, err = filepath.EvalSymlinks(got); err != nil {
					return err
				}
				if got != dir {
					t.Errorf("observed %s inside In(%s)", got, dir)
				}
				return nil
			})
			if err != nil {
				t.Errorf("In: %v", err)
			}
		}()
	}
	wg.Wait()
}
