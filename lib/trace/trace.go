// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package trace captures compute calls to a replayable file.
//
// A capture is a zstd-compressed stream of CBOR values: one Header
// followed by one Record per compute call, in call order. Captures
// exist for protocol debugging and offline replay; recording is
// strictly best-effort and never fails or delays the compute call it
// observes.
package trace

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/bureau-foundation/potbridge/lib/codec"
)

// Header opens every capture file.
type Header struct {
	// Version is the capture format version.
	Version int `cbor:"version"`

	// Created is the wall time the capture was opened.
	Created time.Time `cbor:"created"`

	// Strategy names the transport that served the recorded calls
	// ("socket" or "embedded").
	Strategy string `cbor:"strategy"`

	// ModelFingerprint is the hex BLAKE3 digest of the model file,
	// when the embedded strategy is active. Empty for socket runs,
	// where the service owns the model.
	ModelFingerprint string `cbor:"model_fingerprint,omitempty"`
}

// FormatVersion is the current capture format.
const FormatVersion = 1

// Record is one captured compute call.
type Record struct {
	// Seq is the 1-based call sequence number within this capture.
	Seq uint64 `cbor:"seq"`

	// Start is the wall time the call was issued.
	Start time.Time `cbor:"start"`

	// DurationNS is the call's duration in nanoseconds.
	DurationNS int64 `cbor:"duration_ns"`

	// Request fields.
	AtomCount    int32     `cbor:"atom_count"`
	SpeciesCodes []int32   `cbor:"species_codes"`
	Positions    []float64 `cbor:"positions"`
	Contributing []int32   `cbor:"contributing,omitempty"`

	// Response fields, present when Error is empty.
	Energy float64   `cbor:"energy"`
	Forces []float64 `cbor:"forces,omitempty"`

	// Error is the failure message for calls that did not return a
	// response.
	Error string `cbor:"error,omitempty"`
}

// Writer appends records to a capture file.
type Writer struct {
	file       *os.File
	compressor *zstd.Encoder
	seq        uint64
}

// NewWriter creates a capture file at path and writes its header.
func NewWriter(path string, header Header) (*Writer, error) {
	header.Version = FormatVersion
	if header.Created.IsZero() {
		header.Created = time.Now().UTC()
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating trace capture %s: %w", path, err)
	}
	compressor, err := zstd.NewWriter(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("initializing trace compressor: %w", err)
	}
	w := &Writer{file: file, compressor: compressor}
	if err := codec.NewEncoder(compressor).Encode(&header); err != nil {
		w.Close()
		return nil, fmt.Errorf("writing trace header: %w", err)
	}
	return w, nil
}

// Append writes one record, assigning it the next sequence number.
func (w *Writer) Append(record Record) error {
	w.seq++
	record.Seq = w.seq
	if err := codec.NewEncoder(w.compressor).Encode(&record); err != nil {
		return fmt.Errorf("writing trace record %d: %w", record.Seq, err)
	}
	return nil
}

// Close flushes the compressed stream and closes the file.
func (w *Writer) Close() error {
	compressErr := w.compressor.Close()
	closeErr := w.file.Close()
	if compressErr != nil {
		return fmt.Errorf("flushing trace capture: %w", compressErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing trace capture: %w", closeErr)
	}
	return nil
}

// Reader iterates a capture file.
type Reader struct {
	file         *os.File
	decompressor *zstd.Decoder
	decoder      interface{ Decode(any) error }
	header       Header
}

// OpenReader opens a capture file and reads its header.
func OpenReader(path string) (*Reader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening trace capture %s: %w", path, err)
	}
	decompressor, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("initializing trace decompressor: %w", err)
	}
	decoder := codec.NewDecoder(decompressor)

	var header Header
	if err := decoder.Decode(&header); err != nil {
		decompressor.Close()
		file.Close()
		return nil, fmt.Errorf("reading trace header from %s: %w", path, err)
	}
	if header.Version != FormatVersion {
		decompressor.Close()
		file.Close()
		return nil, fmt.Errorf("trace capture %s has format version %d, want %d", path, header.Version, FormatVersion)
	}
	return &Reader{file: file, decompressor: decompressor, decoder: decoder, header: header}, nil
}

// Header returns the capture header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next record, or io.EOF at the end of the capture.
func (r *Reader) Next() (*Record, error) {
	var record Record
	if err := r.decoder.Decode(&record); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("reading trace record: %w", err)
	}
	return &record, nil
}

// Close releases the reader.
func (r *Reader) Close() error {
	r.decompressor.Close()
	return r.file.Close()
}
