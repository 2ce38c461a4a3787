// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport delivers compute requests to an out-of-process
// potential service over a TCP socket.
//
// One physical connection is established per compute call (connect →
// send → receive → disconnect). There is no pooling and no keep-alive:
// the per-call connection cost buys robustness against a service that
// restarts between calls, which the intended deployment does whenever
// its backing model is swapped. Socket values are not shared between
// in-flight calls; concurrent callers each drive their own connection
// and never contend on transport state.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/bureau-foundation/potbridge/lib/compute"
	"github.com/bureau-foundation/potbridge/lib/wire"
)

// dialTimeout bounds the connect phase. It is deliberately not part
// of the configuration artifact: connect either succeeds quickly or
// the service is down, and the configured timeouts govern I/O only.
const dialTimeout = 5 * time.Second

// Options configures a Socket. Timeouts left zero fall back to
// DefaultTimeout.
type Options struct {
	// Addr is the host:port of the potential service.
	Addr string

	// SendTimeout bounds each write attempt while sending a request.
	SendTimeout time.Duration

	// RecvTimeout bounds each read attempt while receiving a
	// response.
	RecvTimeout time.Duration

	// SendMask controls whether request frames include the
	// contributing mask. This is a property of the connection
	// configuration, agreed with the service out of band, not a
	// per-message flag.
	SendMask bool

	// Logger receives per-call debug detail. Nil disables logging.
	Logger *slog.Logger
}

// DefaultTimeout is applied to send and receive independently when
// the configuration artifact does not set them.
const DefaultTimeout = 15 * time.Second

// Socket implements compute.Transport against a TCP potential
// service.
type Socket struct {
	addr        string
	sendTimeout time.Duration
	recvTimeout time.Duration
	sendMask    bool
	logger      *slog.Logger
}

// NewSocket creates a socket transport. No connection is made until
// the first Evaluate call.
func NewSocket(opts Options) (*Socket, error) {
	if opts.Addr == "" {
		return nil, fmt.Errorf("socket transport requires a remote address")
	}
	s := &Socket{
		addr:        opts.Addr,
		sendTimeout: opts.SendTimeout,
		recvTimeout: opts.RecvTimeout,
		sendMask:    opts.SendMask,
		logger:      opts.Logger,
	}
	if s.sendTimeout <= 0 {
		s.sendTimeout = DefaultTimeout
	}
	if s.recvTimeout <= 0 {
		s.recvTimeout = DefaultTimeout
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s, nil
}

// Evaluate performs one full request/response exchange on a fresh
// connection. The context applies to connection establishment only;
// once the frame is in flight the call runs to completion, to a
// timeout, or to a fatal error.
func (s *Socket) Evaluate(ctx context.Context, req *compute.Request) (*compute.Response, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid compute request: %w", err)
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, &Error{Kind: KindConnect, Op: "connect", Addr: s.addr, Err: err}
	}
	defer conn.Close()

	frame := wire.EncodeRequest(req, s.sendMask)
	start := time.Now()
	if err := s.sendAll(conn, frame); err != nil {
		return nil, err
	}

	n := int(req.AtomCount)
	buf := make([]byte, wire.ResponseSize(n))
	if err := s.recvExact(conn, buf); err != nil {
		return nil, err
	}

	resp, err := wire.DecodeResponse(buf, n)
	if err != nil {
		return nil, &Error{Kind: KindFraming, Op: "receive", Addr: s.addr, Expected: len(buf), Received: len(buf), Err: err}
	}

	s.logger.Debug("evaluated configuration over socket",
		"addr", s.addr, "atoms", n, "elapsed", time.Since(start))
	return resp, nil
}

// Close satisfies compute.Transport. The socket transport holds no
// state between calls, so there is nothing to release.
func (s *Socket) Close() error { return nil }

// sendAll writes the remaining tail of buf until the full payload has
// been written or a fatal socket error occurs. The write deadline is
// re-armed before each attempt, so the configured timeout bounds each
// stall rather than the whole transfer.
func (s *Socket) sendAll(conn net.Conn, buf []byte) error {
	written := 0
	for written < len(buf) {
		if err := conn.SetWriteDeadline(time.Now().Add(s.sendTimeout)); err != nil {
			return &Error{Kind: KindIO, Op: "send", Addr: s.addr, Err: err}
		}
		n, err := conn.Write(buf[written:])
		written += n
		if err != nil {
			if isTimeout(err) {
				return &Error{
					Kind: KindTimeout, Op: "send", Addr: s.addr,
					Timeout: TimeoutSend, TimeoutValue: s.sendTimeout, Err: err,
				}
			}
			return &Error{Kind: KindIO, Op: "send", Addr: s.addr, Err: err}
		}
	}
	return nil
}

// recvExact accumulates into buf until it is full. A zero-length read
// before that point means the remote closed the connection and is a
// fatal incomplete-transfer error, not end-of-stream success: the
// caller must never see a partially filled response.
func (s *Socket) recvExact(conn net.Conn, buf []byte) error {
	got := 0
	for got < len(buf) {
		if err := conn.SetReadDeadline(time.Now().Add(s.recvTimeout)); err != nil {
			return &Error{Kind: KindIO, Op: "receive", Addr: s.addr, Err: err}
		}
		n, err := conn.Read(buf[got:])
		got += n
		if err != nil {
			if err == io.EOF {
				if got == len(buf) {
					return nil
				}
				return &Error{
					Kind: KindFraming, Op: "receive", Addr: s.addr,
					Expected: len(buf), Received: got, Err: err,
				}
			}
			if isTimeout(err) {
				return &Error{
					Kind: KindTimeout, Op: "receive", Addr: s.addr,
					Timeout: TimeoutRecv, TimeoutValue: s.recvTimeout, Err: err,
				}
			}
			return &Error{Kind: KindIO, Op: "receive", Addr: s.addr, Err: err}
		}
	}
	return nil
}

// isTimeout reports whether err is a network deadline expiry.
func isTimeout(err error) bool {
	netErr, ok := err.(net.Error)
	return ok && netErr.Timeout()
}
