// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"io"
	"testing"
)

type record struct {
	Name   string    `cbor:"name"`
	Values []float64 `cbor:"values,omitempty"`
	Count  int       `cbor:"count"`
}

func TestRoundTrip(t *testing.T) {
	in := record{Name: "sw", Values: []float64{1.5, -2.5}, Count: 2}
	data, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out record
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != in.Name || out.Count != in.Count || len(out.Values) != 2 {
		t.Errorf("round trip changed the record: %+v", out)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	in := record{Name: "sw", Values: []float64{1, 2, 3}, Count: 3}
	first, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("same record encoded to different bytes")
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	data, err := Marshal(map[string]any{
		"name":        "sw",
		"count":       1,
		"novel_field": "from a newer writer",
	})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out record
	if err := Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != "sw" || out.Count != 1 {
		t.Errorf("decoded %+v", out)
	}
}

func TestStreamEncoding(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	for i := range 3 {
		if err := enc.Encode(record{Name: "sw", Count: i}); err != nil {
			t.Fatalf("Encode %d: %v", i, err)
		}
	}

	dec := NewDecoder(&buf)
	for i := range 3 {
		var out record
		if err := dec.Decode(&out); err != nil {
			t.Fatalf("Decode %d: %v", i, err)
		}
		if out.Count != i {
			t.Errorf("record %d count %d", i, out.Count)
		}
	}
	var extra record
	if err := dec.Decode(&extra); err != io.EOF {
		t.Errorf("Decode past end = %v, want io.EOF", err)
	}
}
