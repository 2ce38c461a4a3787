// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the composition root of the compute bridge: it
// selects a transport strategy from the configuration artifact and
// exposes the one operation the host plugin needs: evaluate a
// request, get a response.
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bureau-foundation/potbridge/lib/compute"
	"github.com/bureau-foundation/potbridge/lib/config"
	"github.com/bureau-foundation/potbridge/lib/interp"
	"github.com/bureau-foundation/potbridge/lib/trace"
	"github.com/bureau-foundation/potbridge/lib/transport"
)

// Bridge owns one transport strategy for its lifetime. The strategy
// is fixed at construction from the artifact; there is no runtime
// switching, no retry, and no fallback between strategies.
type Bridge struct {
	strategy  config.Strategy
	transport compute.Transport
	handle    compute.ModelHandle
	logger    *slog.Logger
}

// New builds a bridge from a loaded configuration artifact.
//
// The socket strategy advertises the influence distance and species
// list declared in the artifact (the service owns the model); the
// embedded strategy loads the model file and takes both from the
// model's own declaration. When trace capture is configured, the
// chosen transport is wrapped in a recorder.
func New(cfg *config.Config, logger *slog.Logger) (*Bridge, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	bridge := &Bridge{strategy: cfg.Transport, logger: logger}

	switch cfg.Transport {
	case config.StrategySocket:
		socket, err := transport.NewSocket(transport.Options{
			Addr:        cfg.Server.Addr(),
			SendTimeout: cfg.Timeouts.Send(),
			RecvTimeout: cfg.Timeouts.Recv(),
			SendMask:    cfg.SendMaskEnabled(),
			Logger:      logger,
		})
		if err != nil {
			return nil, fmt.Errorf("building socket transport: %w", err)
		}
		bridge.transport = socket
		bridge.handle = compute.ModelHandle{
			InfluenceDistance: cfg.Model.InfluenceDistance,
			Species:           cfg.Model.Species,
		}

	case config.StrategyEmbedded:
		embedded, err := interp.Load(cfg.Model.Path, logger)
		if err != nil {
			return nil, err
		}
		bridge.transport = embedded
		bridge.handle = embedded.Handle()

	default:
		return nil, fmt.Errorf("unknown transport strategy %q", cfg.Transport)
	}

	if cfg.Trace.Path != "" {
		writer, err := trace.NewWriter(cfg.Trace.Path, trace.Header{
			Strategy:         string(cfg.Transport),
			ModelFingerprint: bridge.handle.Fingerprint,
		})
		if err != nil {
			bridge.transport.Close()
			return nil, fmt.Errorf("opening trace capture: %w", err)
		}
		bridge.transport = trace.NewRecorder(bridge.transport, writer, logger)
		logger.Info("trace capture enabled", "path", cfg.Trace.Path)
	}

	return bridge, nil
}

// Evaluate dispatches one request to the active strategy.
func (b *Bridge) Evaluate(ctx context.Context, req *compute.Request) (*compute.Response, error) {
	return b.transport.Evaluate(ctx, req)
}

// Handle returns the model metadata the host should advertise.
func (b *Bridge) Handle() compute.ModelHandle { return b.handle }

// Strategy returns the active transport strategy.
func (b *Bridge) Strategy() config.Strategy { return b.strategy }

// Close tears the bridge down. The configuration artifact it was
// built from has no further effect.
func (b *Bridge) Close() error { return b.transport.Close() }
