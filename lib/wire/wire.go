// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire encodes and decodes the fixed binary compute protocol.
//
// Request frame, in order, packed with no padding:
//
//	int_width      4 bytes, int32: width of every later integer field
//	atom_count     int_width bytes
//	species_codes  int_width × atom_count bytes
//	positions      8 × 3 × atom_count bytes, float64
//	contributing   int_width × atom_count bytes (optional)
//
// Response frame: energy (8 bytes, float64) followed by forces
// (8 × 3 × atom_count bytes). The response carries no length prefix;
// the receiver derives the expected size from the atom count it
// already sent, so request and response correlate purely by
// connection order. Strictly half-duplex, never pipelined.
//
// All fields use native byte order. The protocol assumes both ends
// run on architecturally compatible hosts; the int_width prefix exists
// so that a host and a service built with different integer widths
// fail fast instead of silently misparsing. Whether the contributing
// mask is present is a transport-level configuration choice, not a
// per-message flag.
package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/bureau-foundation/potbridge/lib/compute"
)

// IntWidth is the width in bytes of the integer fields this
// implementation emits. Decoding accepts 4 or 8 from peers.
const IntWidth = 4

// HeaderSize is the size of the fixed int_width prefix.
const HeaderSize = 4

// EnergySize is the size of the energy field in a response frame.
const EnergySize = 8

// byteOrder is the byte order of every field on the wire. Native by
// protocol definition: there is no endianness negotiation.
var byteOrder = binary.NativeEndian

// RequestSize returns the exact encoded size of a request frame for
// atomCount atoms at this implementation's integer width.
func RequestSize(atomCount int, includeMask bool) int {
	size := HeaderSize + IntWidth + IntWidth*atomCount + 24*atomCount
	if includeMask {
		size += IntWidth * atomCount
	}
	return size
}

// PayloadSize returns the size of everything after the atom_count
// field for a peer using the given integer width. The serving side
// uses this to size its bulk read.
func PayloadSize(atomCount, intWidth int, expectMask bool) int {
	size := intWidth*atomCount + 24*atomCount
	if expectMask {
		size += intWidth * atomCount
	}
	return size
}

// ResponseSize returns the exact encoded size of a response frame for
// atomCount atoms.
func ResponseSize(atomCount int) int {
	return EnergySize + 24*atomCount
}

// EncodeRequest encodes a validated request into a single frame. When
// includeMask is true and the request carries no mask, an all-ones
// mask is emitted (every atom contributing), matching the semantics
// of an absent mask.
func EncodeRequest(req *compute.Request, includeMask bool) []byte {
	n := int(req.AtomCount)
	buf := make([]byte, 0, RequestSize(n, includeMask))

	buf = byteOrder.AppendUint32(buf, uint32(IntWidth))
	buf = byteOrder.AppendUint32(buf, uint32(req.AtomCount))
	for _, code := range req.SpeciesCodes {
		buf = byteOrder.AppendUint32(buf, uint32(code))
	}
	for _, coord := range req.Positions {
		buf = byteOrder.AppendUint64(buf, math.Float64bits(coord))
	}
	if includeMask {
		if req.Contributing != nil {
			for _, flag := range req.Contributing {
				buf = byteOrder.AppendUint32(buf, uint32(flag))
			}
		} else {
			for range n {
				buf = byteOrder.AppendUint32(buf, 1)
			}
		}
	}
	return buf
}

// DecodeIntWidth parses the 4-byte frame header and returns the
// peer's integer width. Only widths 4 and 8 are recognized; anything
// else means the stream is already desynchronized or the peer is
// incompatible.
func DecodeIntWidth(header []byte) (int, error) {
	if len(header) != HeaderSize {
		return 0, fmt.Errorf("int width header is %d bytes, want %d", len(header), HeaderSize)
	}
	width := int(int32(byteOrder.Uint32(header)))
	if width != 4 && width != 8 {
		return 0, fmt.Errorf("unsupported integer width %d (want 4 or 8)", width)
	}
	return width, nil
}

// DecodeAtomCount parses the atom_count field at the given integer
// width. A negative count is rejected: it cannot be a valid frame and
// the derived payload size would be meaningless.
func DecodeAtomCount(field []byte, intWidth int) (int, error) {
	if len(field) != intWidth {
		return 0, fmt.Errorf("atom count field is %d bytes, want %d", len(field), intWidth)
	}
	var count int64
	switch intWidth {
	case 4:
		count = int64(int32(byteOrder.Uint32(field)))
	case 8:
		count = int64(byteOrder.Uint64(field))
	default:
		return 0, fmt.Errorf("unsupported integer width %d", intWidth)
	}
	if count < 0 {
		return 0, fmt.Errorf("negative atom count %d", count)
	}
	return int(count), nil
}

// DecodePayload parses the request body that follows the atom_count
// field: species codes, positions, and (when expected) the
// contributing mask. The buffer must be exactly PayloadSize bytes; a
// mismatch is a framing error, never silently truncated or padded.
func DecodePayload(payload []byte, atomCount, intWidth int, expectMask bool) (*compute.Request, error) {
	want := PayloadSize(atomCount, intWidth, expectMask)
	if len(payload) != want {
		return nil, fmt.Errorf("request payload is %d bytes, want %d for %d atoms", len(payload), want, atomCount)
	}

	req := &compute.Request{
		AtomCount:    int32(atomCount),
		SpeciesCodes: make([]int32, atomCount),
		Positions:    make([]float64, 3*atomCount),
	}

	offset := 0
	for i := range req.SpeciesCodes {
		req.SpeciesCodes[i] = decodeInt(payload[offset:offset+intWidth], intWidth)
		offset += intWidth
	}
	for i := range req.Positions {
		req.Positions[i] = math.Float64frombits(byteOrder.Uint64(payload[offset : offset+8]))
		offset += 8
	}
	if expectMask {
		req.Contributing = make([]int32, atomCount)
		for i := range req.Contributing {
			req.Contributing[i] = decodeInt(payload[offset:offset+intWidth], intWidth)
			offset += intWidth
		}
	}
	return req, nil
}

// EncodeResponse encodes a response frame: energy then forces.
func EncodeResponse(resp *compute.Response) []byte {
	buf := make([]byte, 0, EnergySize+8*len(resp.Forces))
	buf = byteOrder.AppendUint64(buf, math.Float64bits(resp.Energy))
	for _, f := range resp.Forces {
		buf = byteOrder.AppendUint64(buf, math.Float64bits(f))
	}
	return buf
}

// DecodeResponse parses a response frame for the given atom count.
// The buffer must be exactly ResponseSize(atomCount) bytes.
func DecodeResponse(buf []byte, atomCount int) (*compute.Response, error) {
	want := ResponseSize(atomCount)
	if len(buf) != want {
		return nil, fmt.Errorf("response frame is %d bytes, want %d for %d atoms", len(buf), want, atomCount)
	}
	resp := &compute.Response{
		Energy: math.Float64frombits(byteOrder.Uint64(buf[:EnergySize])),
		Forces: make([]float64, 3*atomCount),
	}
	for i := range resp.Forces {
		off := EnergySize + 8*i
		resp.Forces[i] = math.Float64frombits(byteOrder.Uint64(buf[off : off+8]))
	}
	return resp, nil
}

// decodeInt reads one integer field at the given width. Values from
// 8-byte peers are truncated to int32 range by the species-code and
// mask domains (codes index a species list, masks are 0/1), so the
// narrowing conversion is safe for well-formed frames.
func decodeInt(field []byte, intWidth int) int32 {
	if intWidth == 8 {
		return int32(int64(byteOrder.Uint64(field)))
	}
	return int32(byteOrder.Uint32(field))
}
