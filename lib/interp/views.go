// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package interp

import (
	"fmt"

	"go.starlark.net/starlark"
)

// The view types expose request buffers to the interpreter without
// copying them. Each one is a read-only starlark sequence backed
// directly by the host-owned slice: the script indexes and iterates
// them like lists, but no element exists until it is asked for.
// Freeze is a no-op because the views are immutable from the script's
// side by construction.

// intVector is a read-only starlark view over an []int32 (species
// codes, contributing mask).
type intVector struct {
	name string
	data []int32
}

var _ starlark.Indexable = (*intVector)(nil)
var _ starlark.Sequence = (*intVector)(nil)

func (v *intVector) String() string        { return fmt.Sprintf("<%s len=%d>", v.name, len(v.data)) }
func (v *intVector) Type() string          { return v.name }
func (v *intVector) Freeze()               {}
func (v *intVector) Truth() starlark.Bool  { return len(v.data) > 0 }
func (v *intVector) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", v.name) }
func (v *intVector) Len() int              { return len(v.data) }

func (v *intVector) Index(i int) starlark.Value { return starlark.MakeInt(int(v.data[i])) }

func (v *intVector) Iterate() starlark.Iterator { return &indexIterator{seq: v} }

// vecRow is a read-only starlark view over one 3-component row of a
// row-major float64 buffer.
type vecRow struct {
	data []float64 // always length 3
}

var _ starlark.Indexable = (*vecRow)(nil)
var _ starlark.Sequence = (*vecRow)(nil)

func (v *vecRow) String() string {
	return fmt.Sprintf("(%g, %g, %g)", v.data[0], v.data[1], v.data[2])
}
func (v *vecRow) Type() string               { return "vec3_view" }
func (v *vecRow) Freeze()                    {}
func (v *vecRow) Truth() starlark.Bool       { return starlark.True }
func (v *vecRow) Hash() (uint32, error)      { return 0, fmt.Errorf("unhashable type: vec3_view") }
func (v *vecRow) Len() int                   { return 3 }
func (v *vecRow) Index(i int) starlark.Value { return starlark.Float(v.data[i]) }
func (v *vecRow) Iterate() starlark.Iterator { return &indexIterator{seq: v} }

// matrixView is a read-only starlark view over a row-major
// (rows × 3) float64 buffer. Indexing yields vecRow views into the
// same backing slice.
type matrixView struct {
	data []float64 // length rows×3
	rows int
}

var _ starlark.Indexable = (*matrixView)(nil)
var _ starlark.Sequence = (*matrixView)(nil)

func (m *matrixView) String() string        { return fmt.Sprintf("<positions_view rows=%d>", m.rows) }
func (m *matrixView) Type() string          { return "positions_view" }
func (m *matrixView) Freeze()               {}
func (m *matrixView) Truth() starlark.Bool  { return m.rows > 0 }
func (m *matrixView) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: positions_view") }
func (m *matrixView) Len() int              { return m.rows }

func (m *matrixView) Index(i int) starlark.Value {
	return &vecRow{data: m.data[3*i : 3*i+3]}
}

func (m *matrixView) Iterate() starlark.Iterator { return &indexIterator{seq: m} }

// indexIterator walks any Indexable that also reports a length.
type indexIterator struct {
	seq starlark.Indexable
	pos int
}

func (it *indexIterator) Next(value *starlark.Value) bool {
	if it.pos >= it.seq.Len() {
		return false
	}
	*value = it.seq.Index(it.pos)
	it.pos++
	return true
}

func (it *indexIterator) Done() {}
