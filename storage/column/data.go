// Copyright (C) 2024 The obx Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package column

import (
	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/value"
)

// Kind is the tagged-union discriminant of a Data column, per spec.md
// §4.5's column_data_t hierarchy: Primitive (scalar, segment-backed),
// Validity (a standalone null bitmap; List and Array do not use it: a
// NULL List row is stored as an empty offset range and a NULL Array row
// as NULL elements), List (variable
// cardinality per row), Array (fixed cardinality per row), and Struct
// (named fields, same cardinality). Grounded on
// _examples/original_source/components/table/array_column_data.cpp and
// list_column_data.cpp.
type Kind int

const (
	KindPrimitive Kind = iota
	KindValidity
	KindList
	KindArray
	KindStruct
)

// defaultSegmentCapacity bounds how many rows a single Segment holds
// before Data rolls a new one, mirroring spec.md §4.4's fixed-capacity
// segment contract.
const defaultSegmentCapacity = 1 << 16

// StructFieldData pairs a struct field name with its column.
type StructFieldData struct {
	Name string
	Data *Data
}

// Data is one column's full value sequence: for Primitive columns, an
// ordered list of fixed-capacity Segments; for List/Array/Struct, a
// recursive composition over child Data plus the bookkeeping spec.md
// §4.5 assigns each (offsets for List, a fixed stride for Array, named
// fields for Struct).
type Data struct {
	Kind    Kind
	Logical value.LogicalType

	segmentCap uint64
	segments   []*Segment // Primitive
	rowCount   uint64

	validity []bool // standalone Validity kind only

	offsets []uint64 // List: cumulative child element count, len rowCount+1
	child   *Data    // List, Array

	arrayLen int // Array: fixed elements per row

	fields []StructFieldData // Struct
}

// NewPrimitiveData creates an empty scalar column of logical type t.
func NewPrimitiveData(t value.LogicalType) *Data {
	return &Data{Kind: KindPrimitive, Logical: t, segmentCap: defaultSegmentCapacity}
}

// RestorePrimitiveData reconstructs a Primitive column from segments
// rebuilt by LoadSegment, for storage/checkpoint's load path.
func RestorePrimitiveData(t value.LogicalType, segments []*Segment) *Data {
	var rowCount uint64
	for _, s := range segments {
		rowCount += s.TupleCount()
	}
	return &Data{Kind: KindPrimitive, Logical: t, segmentCap: defaultSegmentCapacity, segments: segments, rowCount: rowCount}
}

// NewValidityData creates a standalone null-tracking column.
func NewValidityData() *Data { return &Data{Kind: KindValidity} }

// NewListData creates a List column whose elements are of child's type.
func NewListData(child *Data) *Data {
	return &Data{Kind: KindList, Logical: value.List, child: child, offsets: []uint64{0}}
}

// NewArrayData creates a fixed-cardinality Array column of length
// elements per row, each of child's type.
func NewArrayData(child *Data, length int) *Data {
	return &Data{Kind: KindArray, Logical: value.Array, child: child, arrayLen: length}
}

// NewStructData creates a Struct column over the given named fields.
func NewStructData(fields []StructFieldData) *Data {
	return &Data{Kind: KindStruct, Logical: value.Struct, fields: fields}
}

// RowCount returns the number of rows appended to the column so far.
func (d *Data) RowCount() uint64 {
	switch d.Kind {
	case KindStruct:
		if len(d.fields) == 0 {
			return 0
		}
		return d.fields[0].Data.RowCount()
	case KindList, KindArray:
		return d.rowCount
	default:
		return d.rowCount
	}
}

// Segments returns the column's segment list (Primitive columns only;
// nested kinds return nil). Used by the checkpoint pipeline to flush
// each segment in turn.
func (d *Data) Segments() []*Segment { return d.segments }

// Child returns the element column of a List/Array column, or nil for
// every other Kind.
func (d *Data) Child() *Data { return d.child }

// Fields returns a Struct column's named fields, or nil for every other
// Kind.
func (d *Data) Fields() []StructFieldData { return d.fields }

// Offsets returns a List column's cumulative child-element offsets
// (length RowCount()+1), or nil for every other Kind.
func (d *Data) Offsets() []uint64 { return d.offsets }

// ArrayLen returns an Array column's fixed per-row element count, or 0
// for every other Kind.
func (d *Data) ArrayLen() int { return d.arrayLen }

func (d *Data) tailSegment() *Segment {
	if len(d.segments) == 0 || d.segments[len(d.segments)-1].Full() {
		rowStart := d.rowCount
		d.segments = append(d.segments, NewSegment(d.Logical, rowStart, d.segmentCap))
	}
	return d.segments[len(d.segments)-1]
}

// AppendValue appends one logical row to the column, recursing into
// children for List/Array/Struct per spec.md §4.5.
func (d *Data) AppendValue(v value.Value) error {
	switch d.Kind {
	case KindPrimitive:
		seg := d.tailSegment()
		single := value.NewVector(d.Logical, 1)
		single.Append(v)
		if err := seg.Append(single, 0, 1); err != nil {
			return err
		}
		d.rowCount++
		return nil
	case KindValidity:
		d.validity = append(d.validity, !v.Null)
		d.rowCount++
		return nil
	case KindList:
		if v.Null {
			d.offsets = append(d.offsets, d.offsets[len(d.offsets)-1])
			d.rowCount++
			return nil
		}
		for _, e := range v.Elems {
			if err := d.child.AppendValue(e); err != nil {
				return err
			}
		}
		d.offsets = append(d.offsets, d.offsets[len(d.offsets)-1]+uint64(len(v.Elems)))
		d.rowCount++
		return nil
	case KindArray:
		if !v.Null && len(v.Elems) != d.arrayLen {
			return obxerr.InvalidArgument("column: array row has wrong element count")
		}
		elems := v.Elems
		if v.Null {
			elems = make([]value.Value, d.arrayLen)
			for i := range elems {
				elems[i] = value.NewNull(d.child.Logical)
			}
		}
		for _, e := range elems {
			if err := d.child.AppendValue(e); err != nil {
				return err
			}
		}
		d.rowCount++
		return nil
	case KindStruct:
		if v.Null {
			for _, f := range d.fields {
				if err := f.Data.AppendValue(value.NewNull(f.Data.Logical)); err != nil {
					return err
				}
			}
			return nil
		}
		if len(v.Elems) != len(d.fields) {
			return obxerr.InvalidArgument("column: struct row field count mismatch")
		}
		for i, f := range d.fields {
			if err := f.Data.AppendValue(v.Elems[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		return obxerr.Unsupported("column: unknown data kind")
	}
}

// FetchRow reconstructs the logical value at global row index rowID.
func (d *Data) FetchRow(rowID uint64) (value.Value, error) {
	switch d.Kind {
	case KindPrimitive:
		seg, local, err := d.locate(rowID)
		if err != nil {
			return value.Value{}, err
		}
		return seg.FetchRow(local)
	case KindValidity:
		if rowID >= uint64(len(d.validity)) {
			return value.Value{}, obxerr.InvalidArgument("column: validity fetch out of range")
		}
		return value.NewBool(d.validity[rowID]), nil
	case KindList:
		if rowID+1 >= uint64(len(d.offsets)) {
			return value.Value{}, obxerr.InvalidArgument("column: list fetch out of range")
		}
		start, end := d.offsets[rowID], d.offsets[rowID+1]
		elems := make([]value.Value, 0, end-start)
		for i := start; i < end; i++ {
			e, err := d.child.FetchRow(i)
			if err != nil {
				return value.Value{}, err
			}
			elems = append(elems, e)
		}
		return value.NewList(elems), nil
	case KindArray:
		start := rowID * uint64(d.arrayLen)
		elems := make([]value.Value, d.arrayLen)
		for i := 0; i < d.arrayLen; i++ {
			e, err := d.child.FetchRow(start + uint64(i))
			if err != nil {
				return value.Value{}, err
			}
			elems[i] = e
		}
		return value.NewArray(elems), nil
	case KindStruct:
		elems := make([]value.Value, len(d.fields))
		for i, f := range d.fields {
			e, err := f.Data.FetchRow(rowID)
			if err != nil {
				return value.Value{}, err
			}
			elems[i] = e
		}
		return value.NewStruct(elems), nil
	default:
		return value.Value{}, obxerr.Unsupported("column: unknown data kind")
	}
}

// UpdateRow overwrites the value at global row rowID in place. Only
// Primitive columns of a fixed-width physical type support this; see
// Segment.UpdateRow.
func (d *Data) UpdateRow(rowID uint64, v value.Value) error {
	if d.Kind != KindPrimitive {
		return obxerr.Unsupported("column: update_row on non-primitive column")
	}
	seg, local, err := d.locate(rowID)
	if err != nil {
		return err
	}
	return seg.UpdateRow(local, v)
}

// locate finds the segment owning global row rowID and the row's local
// offset within that segment.
func (d *Data) locate(rowID uint64) (*Segment, int, error) {
	for _, seg := range d.segments {
		if rowID >= seg.RowStart && rowID < seg.RowStart+seg.TupleCount() {
			return seg, int(rowID - seg.RowStart), nil
		}
	}
	return nil, 0, obxerr.NotFound("column: row id not found in any segment")
}

// Statistics returns the column's cumulative zonemap across all segments
// (Primitive columns only; nested kinds have no scalar zonemap of their
// own).
func (d *Data) Statistics() Statistics {
	var s Statistics
	for _, seg := range d.segments {
		s.Merge(seg.SegmentStatistics())
	}
	return s
}

// CheckZonemap evaluates f against the column's cumulative statistics.
func (d *Data) CheckZonemap(f *Filter) ZonemapResult {
	return CheckZonemap(f, d.Statistics())
}
