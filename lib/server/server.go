// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package server runs the out-of-process side of the compute
// protocol: a TCP listener that reads request frames and answers each
// one with an energy/forces frame.
//
// Connections are conversational: a client may send any number of
// requests on one connection, strictly one at a time (the protocol is
// half-duplex request/response, never pipelined). The bridge's socket
// transport happens to reconnect per call; the server does not care
// either way. A client disconnect between frames is the normal end of
// a conversation; a disconnect mid-frame is logged as a framing error
// and drops the connection.
//
// An evaluation failure has no error channel on the wire, so the
// server logs it and closes the connection; the client surfaces that
// as an incomplete transfer. Model hot-reload and process management
// are deliberately outside this package.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bureau-foundation/potbridge/lib/compute"
	"github.com/bureau-foundation/potbridge/lib/wire"
)

// DefaultMaxAtoms is the hard upper bound on the atom count accepted
// from clients. Its only purpose is to keep a desynchronized or
// malicious frame from provoking an enormous allocation; real
// configurations sit far below it.
const DefaultMaxAtoms = 1_000_000_000

// Options configures a Server.
type Options struct {
	// Addr is the TCP listen address (host:port; port 0 picks one).
	Addr string

	// Evaluator serves the actual computation; in the intended
	// deployment, the interpreter bridge.
	Evaluator compute.Transport

	// RecvTimeout and SendTimeout bound each socket read and write
	// attempt. Zero means no deadline.
	RecvTimeout time.Duration
	SendTimeout time.Duration

	// ExpectMask tells the server whether request frames carry the
	// contributing mask. A deployment-level agreement with the
	// client, not a per-message flag.
	ExpectMask bool

	// MaxAtoms overrides DefaultMaxAtoms when positive.
	MaxAtoms int

	// Logger receives connection lifecycle and error detail.
	Logger *slog.Logger
}

// Server accepts compute-protocol connections and dispatches them to
// an evaluator.
type Server struct {
	opts     Options
	listener net.Listener

	// active tracks in-flight connection handlers so Serve can drain
	// them before returning.
	active sync.WaitGroup
}

// New creates a server. Call Listen then Serve.
func New(opts Options) (*Server, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("server requires a listen address")
	}
	if opts.Evaluator == nil {
		return nil, fmt.Errorf("server requires an evaluator")
	}
	if opts.MaxAtoms <= 0 {
		opts.MaxAtoms = DefaultMaxAtoms
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Server{opts: opts}, nil
}

// Listen binds the TCP listener. Separate from Serve so callers (and
// tests) can learn the bound address before the accept loop starts.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.Addr, err)
	}
	s.listener = listener
	return nil
}

// Addr returns the bound listen address. Valid after Listen.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits for active conversations to finish.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	// Unblock Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	s.opts.Logger.Info("potential service listening", "addr", s.listener.Addr().String())

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.opts.Logger.Error("accept failed", "error", err)
			continue
		}

		s.active.Add(1)
		go func() {
			defer s.active.Done()
			defer conn.Close()
			s.handleConn(ctx, conn)
		}()
	}

	s.active.Wait()
	s.opts.Logger.Info("potential service stopped")
	return nil
}

// handleConn runs one conversation: request frames in, response
// frames out, until the client disconnects or an error ends it.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()
	logger := s.opts.Logger.With("remote", remote)
	logger.Info("client connected")

	for {
		req, err := s.readRequest(conn)
		if err != nil {
			if errors.Is(err, errClientDone) {
				logger.Info("client closed the connection")
			} else {
				logger.Warn("dropping connection", "error", err)
			}
			return
		}

		start := time.Now()
		resp, err := s.opts.Evaluator.Evaluate(ctx, req)
		if err != nil {
			// No error channel on the wire: close and let the client
			// report an incomplete transfer.
			logger.Error("evaluation failed", "atoms", req.AtomCount, "error", err)
			return
		}

		if err := s.writeResponse(conn, resp); err != nil {
			logger.Warn("dropping connection", "error", err)
			return
		}
		logger.Debug("evaluated configuration",
			"atoms", req.AtomCount, "energy", resp.Energy, "elapsed", time.Since(start))
	}
}

// errClientDone marks a clean disconnect at a frame boundary.
var errClientDone = errors.New("client closed the connection")

// readRequest reads one full request frame. A clean EOF before any
// header byte is errClientDone; an EOF anywhere else is a framing
// error.
func (s *Server) readRequest(conn net.Conn) (*compute.Request, error) {
	header := make([]byte, wire.HeaderSize)
	if err := s.readFull(conn, header, true); err != nil {
		return nil, err
	}
	intWidth, err := wire.DecodeIntWidth(header)
	if err != nil {
		return nil, err
	}

	countField := make([]byte, intWidth)
	if err := s.readFull(conn, countField, false); err != nil {
		return nil, err
	}
	atomCount, err := wire.DecodeAtomCount(countField, intWidth)
	if err != nil {
		return nil, err
	}
	if atomCount > s.opts.MaxAtoms {
		return nil, fmt.Errorf("atom count %d exceeds limit %d", atomCount, s.opts.MaxAtoms)
	}

	payload := make([]byte, wire.PayloadSize(atomCount, intWidth, s.opts.ExpectMask))
	if err := s.readFull(conn, payload, false); err != nil {
		return nil, err
	}
	return wire.DecodePayload(payload, atomCount, intWidth, s.opts.ExpectMask)
}

// readFull accumulates into buf, re-arming the receive deadline
// before each attempt. atFrameBoundary marks reads where a clean EOF
// with nothing received is a normal end of conversation rather than
// an incomplete transfer.
func (s *Server) readFull(conn net.Conn, buf []byte, atFrameBoundary bool) error {
	got := 0
	for got < len(buf) {
		if s.opts.RecvTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(s.opts.RecvTimeout)); err != nil {
				return fmt.Errorf("arming receive deadline: %w", err)
			}
		}
		n, err := conn.Read(buf[got:])
		got += n
		if err != nil {
			if err == io.EOF {
				if got == len(buf) {
					return nil
				}
				if got == 0 && atFrameBoundary {
					return errClientDone
				}
				return fmt.Errorf("incomplete transfer: got %d of %d bytes before the client closed the connection", got, len(buf))
			}
			return fmt.Errorf("receiving frame: %w", err)
		}
	}
	return nil
}

// writeResponse sends one response frame, re-arming the send deadline
// before each write attempt.
func (s *Server) writeResponse(conn net.Conn, resp *compute.Response) error {
	frame := wire.EncodeResponse(resp)
	written := 0
	for written < len(frame) {
		if s.opts.SendTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(s.opts.SendTimeout)); err != nil {
				return fmt.Errorf("arming send deadline: %w", err)
			}
		}
		n, err := conn.Write(frame[written:])
		written += n
		if err != nil {
			return fmt.Errorf("sending response: %w", err)
		}
	}
	return nil
}
