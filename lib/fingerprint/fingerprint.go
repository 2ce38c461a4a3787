// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fingerprint computes BLAKE3 digests of model files.
//
// The digest is recorded in the model handle, logged at load time,
// and embedded in trace captures, so an operator can tell exactly
// which model produced a given run without trusting file paths or
// modification times.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// domainKey separates model-file digests from any other BLAKE3 use.
// The bytes are the ASCII domain name zero-padded to 32 bytes, kept
// readable so the key is inspectable in hex dumps. Changing it
// invalidates every recorded fingerprint.
var domainKey = [32]byte{
	'p', 'o', 't', 'b', 'r', 'i', 'd', 'g', 'e', '.', 'm', 'o', 'd', 'e', 'l', '.',
	'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// File computes the keyed BLAKE3 digest of the file at path,
// streaming in chunks to keep memory constant regardless of file
// size. Returns the canonical hex form used in logs and traces.
func File(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for fingerprinting: %w", path, err)
	}
	defer file.Close()

	hasher, err := blake3.NewKeyed(domainKey[:])
	if err != nil {
		return "", fmt.Errorf("initializing fingerprint hasher: %w", err)
	}
	if _, err := io.Copy(hasher, file); err != nil {
		return "", fmt.Errorf("fingerprinting %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}
