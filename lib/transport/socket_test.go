// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/potbridge/lib/compute"
	"github.com/bureau-foundation/potbridge/lib/wire"
)

func sampleRequest() *compute.Request {
	return &compute.Request{
		AtomCount:    2,
		SpeciesCodes: []int32{0, 0},
		Positions:    []float64{0, 0, 0, 1.5, 0, 0},
		Contributing: []int32{1, 1},
	}
}

// fakeService accepts exactly one connection on a loopback listener
// and hands it to serve on a separate goroutine. The returned address
// is ready to dial immediately.
func fakeService(t *testing.T, serve func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		serve(conn)
	}()
	return ln.Addr().String()
}

// readRequestFrame consumes one complete request frame from conn and
// returns the decoded request.
func readRequestFrame(t *testing.T, conn net.Conn, expectMask bool) *compute.Request {
	t.Helper()
	header := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(conn, header); err != nil {
		t.Errorf("read header: %v", err)
		return nil
	}
	width, err := wire.DecodeIntWidth(header)
	if err != nil {
		t.Errorf("decode width: %v", err)
		return nil
	}
	countField := make([]byte, width)
	if _, err := io.ReadFull(conn, countField); err != nil {
		t.Errorf("read atom count: %v", err)
		return nil
	}
	atoms, err := wire.DecodeAtomCount(countField, width)
	if err != nil {
		t.Errorf("decode atom count: %v", err)
		return nil
	}
	payload := make([]byte, wire.PayloadSize(atoms, width, expectMask))
	if _, err := io.ReadFull(conn, payload); err != nil {
		t.Errorf("read payload: %v", err)
		return nil
	}
	req, err := wire.DecodePayload(payload, atoms, width, expectMask)
	if err != nil {
		t.Errorf("decode payload: %v", err)
		return nil
	}
	return req
}

func TestEvaluateRoundTrip(t *testing.T) {
	addr := fakeService(t, func(conn net.Conn) {
		req := readRequestFrame(t, conn, true)
		if req == nil {
			return
		}
		resp := &compute.Response{
			Energy: -1.25,
			Forces: make([]float64, 3*req.AtomCount),
		}
		for i := range resp.Forces {
			resp.Forces[i] = float64(i)
		}
		conn.Write(wire.EncodeResponse(resp))
	})

	sock, err := NewSocket(Options{Addr: addr, SendMask: true})
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	resp, err := sock.Evaluate(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if resp.Energy != -1.25 {
		t.Errorf("energy %g, want -1.25", resp.Energy)
	}
	if len(resp.Forces) != 6 {
		t.Fatalf("forces length %d, want 6", len(resp.Forces))
	}
	for i, f := range resp.Forces {
		if f != float64(i) {
			t.Errorf("force %d = %g, want %g", i, f, float64(i))
		}
	}
}

func TestEvaluateWithoutMask(t *testing.T) {
	addr := fakeService(t, func(conn net.Conn) {
		req := readRequestFrame(t, conn, false)
		if req == nil {
			return
		}
		if req.Contributing != nil {
			t.Errorf("mask-free frame decoded a mask: %v", req.Contributing)
		}
		conn.Write(wire.EncodeResponse(&compute.Response{
			Forces: make([]float64, 3*req.AtomCount),
		}))
	})

	sock, err := NewSocket(Options{Addr: addr, SendMask: false})
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	if _, err := sock.Evaluate(context.Background(), sampleRequest()); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
}

func TestEvaluateRecvTimeout(t *testing.T) {
	done := make(chan struct{})
	addr := fakeService(t, func(conn net.Conn) {
		// Consume the request, then stall without responding.
		readRequestFrame(t, conn, true)
		<-done
	})
	defer close(done)

	sock, err := NewSocket(Options{Addr: addr, SendMask: true, RecvTimeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	_, err = sock.Evaluate(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error is %T, want *transport.Error", err)
	}
	if terr.Kind != KindTimeout {
		t.Errorf("kind %v, want %v", terr.Kind, KindTimeout)
	}
	if terr.Timeout != TimeoutRecv {
		t.Errorf("timeout name %q, want %q", terr.Timeout, TimeoutRecv)
	}
	if !strings.Contains(err.Error(), TimeoutRecv) {
		t.Errorf("message should name the timeout to raise: %v", err)
	}
	if !strings.Contains(err.Error(), "50ms") {
		t.Errorf("message should carry the current timeout value: %v", err)
	}
}

func TestEvaluateIncompleteResponse(t *testing.T) {
	addr := fakeService(t, func(conn net.Conn) {
		readRequestFrame(t, conn, true)
		// Energy only, then close. The client expects 8 + 48 bytes
		// for two atoms.
		conn.Write(make([]byte, wire.EnergySize))
	})

	sock, err := NewSocket(Options{Addr: addr, SendMask: true})
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	_, err = sock.Evaluate(context.Background(), sampleRequest())
	if err == nil {
		t.Fatal("expected incomplete-transfer error")
	}
	var terr *Error
	if !errors.As(err, &terr) {
		t.Fatalf("error is %T, want *transport.Error", err)
	}
	if terr.Kind != KindFraming {
		t.Errorf("kind %v, want %v", terr.Kind, KindFraming)
	}
	if terr.Received != wire.EnergySize || terr.Expected != wire.ResponseSize(2) {
		t.Errorf("got %d of %d bytes, want %d of %d", terr.Received, terr.Expected, wire.EnergySize, wire.ResponseSize(2))
	}
}

func TestEvaluateConnectRefused(t *testing.T) {
	// Grab a free port, then release it so the dial is refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	sock, err := NewSocket(Options{Addr: addr, SendMask: true})
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	_, err = sock.Evaluate(context.Background(), sampleRequest())
	var terr *Error
	if !errors.As(err, &terr) || terr.Kind != KindConnect {
		t.Fatalf("error %v, want a connect-kind transport error", err)
	}
}

func TestEvaluateRejectsInvalidRequest(t *testing.T) {
	sock, err := NewSocket(Options{Addr: "127.0.0.1:1"})
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	req := sampleRequest()
	req.SpeciesCodes = req.SpeciesCodes[:1]
	if _, err := sock.Evaluate(context.Background(), req); err == nil {
		t.Fatal("expected validation error before any connection attempt")
	}
}

func TestNewSocketDefaults(t *testing.T) {
	if _, err := NewSocket(Options{}); err == nil {
		t.Fatal("expected error for missing address")
	}
	sock, err := NewSocket(Options{Addr: "127.0.0.1:9999"})
	if err != nil {
		t.Fatalf("NewSocket: %v", err)
	}
	if sock.sendTimeout != DefaultTimeout || sock.recvTimeout != DefaultTimeout {
		t.Errorf("timeouts %v/%v, want %v defaults", sock.sendTimeout, sock.recvTimeout, DefaultTimeout)
	}
}
