// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"
	"time"
)

// Kind classifies a transport failure. Every failure is fatal and
// local to the call that raised it: the transport never retries and
// never degrades. The kind exists so callers and tests can branch on
// the failure class without parsing messages.
type Kind int

const (
	// KindConnect: the socket could not be opened or the remote
	// refused the connection.
	KindConnect Kind = iota + 1

	// KindTimeout: a send or receive exceeded its configured
	// duration. The error names which of the two timeouts to raise
	// and its current value.
	KindTimeout

	// KindFraming: the remote closed the connection before the full
	// frame transferred, or the byte count fell short of the
	// expected frame size.
	KindFraming

	// KindIO: any other fatal socket error during send or receive.
	KindIO
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindTimeout:
		return "timeout"
	case KindFraming:
		return "framing"
	case KindIO:
		return "io"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// Timeout names distinguish the two independently configured
// deadlines in operator-facing messages.
const (
	TimeoutSend = "timeout_send"
	TimeoutRecv = "timeout_recv"
)

// Error is the failure type for every socket transport operation.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Op is the operation that failed: "connect", "send", "receive".
	Op string

	// Addr is the remote address involved.
	Addr string

	// Timeout and TimeoutValue identify the configured timeout to
	// raise when Kind is KindTimeout.
	Timeout      string
	TimeoutValue time.Duration

	// Expected and Received carry byte counts when Kind is
	// KindFraming.
	Expected int
	Received int

	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindConnect:
		return fmt.Sprintf("connecting to %s: %v", e.Addr, e.Err)
	case KindTimeout:
		return fmt.Sprintf("%s to %s timed out after %v: raise %s (currently %v)",
			e.Op, e.Addr, e.TimeoutValue, e.Timeout, e.TimeoutValue)
	case KindFraming:
		return fmt.Sprintf("incomplete transfer during %s on %s: got %d of %d bytes before the remote closed the connection",
			e.Op, e.Addr, e.Received, e.Expected)
	default:
		return fmt.Sprintf("%s on %s: %v", e.Op, e.Addr, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }
