// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package trace

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/potbridge/lib/compute"
)

// Recorder wraps a compute.Transport and captures every call. A
// recording failure is logged and dropped: it never fails or delays
// the compute call, and after the first write failure the recorder
// stops trying so a full disk does not log once per simulation step.
type Recorder struct {
	inner  compute.Transport
	logger *slog.Logger

	mu     sync.Mutex
	writer *Writer
	broken bool
}

var _ compute.Transport = (*Recorder)(nil)

// NewRecorder wraps inner with capture to the given writer.
func NewRecorder(inner compute.Transport, writer *Writer, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{inner: inner, logger: logger, writer: writer}
}

// Evaluate delegates to the wrapped transport and records the
// outcome.
func (r *Recorder) Evaluate(ctx context.Context, req *compute.Request) (*compute.Response, error) {
	start := time.Now()
	resp, err := r.inner.Evaluate(ctx, req)
	r.record(req, resp, err, start)
	return resp, err
}

// Close flushes the capture and closes the wrapped transport.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if err := r.writer.Close(); err != nil && !r.broken {
		r.logger.Warn("closing trace capture", "error", err)
	}
	r.mu.Unlock()
	return r.inner.Close()
}

func (r *Recorder) record(req *compute.Request, resp *compute.Response, callErr error, start time.Time) {
	record := Record{
		Start:        start.UTC(),
		DurationNS:   time.Since(start).Nanoseconds(),
		AtomCount:    req.AtomCount,
		SpeciesCodes: req.SpeciesCodes,
		Positions:    req.Positions,
		Contributing: req.Contributing,
	}
	if callErr != nil {
		record.Error = callErr.Error()
	} else if resp != nil {
		record.Energy = resp.Energy
		record.Forces = resp.Forces
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.broken {
		return
	}
	if err := r.writer.Append(record); err != nil {
		r.broken = true
		r.logger.Warn("trace recording disabled after write failure", "error", err)
	}
}
