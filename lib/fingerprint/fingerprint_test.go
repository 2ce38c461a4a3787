// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestFileStable(t *testing.T) {
	path := writeFile(t, "model.star", "def evaluate():\n    pass\n")

	first, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	second, err := File(path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if first != second {
		t.Errorf("same file hashed to %s and %s", first, second)
	}
	if len(first) != 64 {
		t.Errorf("digest is %d hex chars, want 64", len(first))
	}
}

func TestFileDistinguishesContent(t *testing.T) {
	a, err := File(writeFile(t, "a.star", "x = 1\n"))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	b, err := File(writeFile(t, "b.star", "x = 2\n"))
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if a == b {
		t.Error("distinct files produced identical digests")
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "absent.star")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
