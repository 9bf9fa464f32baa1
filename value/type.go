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

// Package value implements the engine's typed value representation:
// logical types, fixed-capacity columnar vectors with validity bitmaps,
// and data chunks (ordered vectors sharing a cardinality). Document
// value representation and MsgPack encoding of externally-facing rows
// are out of scope for this package (see spec.md §1); this is the
// internal columnar representation the storage core operates on.
package value

import "fmt"

// LogicalType is the logical type of a Value or Vector, per spec.md §3.
type LogicalType uint8

const (
	Invalid LogicalType = iota
	Null
	Bool
	Int8
	Int16
	Int32
	Int64
	Int128
	Uint8
	Uint16
	Uint32
	Uint64
	Uint128
	Float
	Double
	String
	Blob
	Timestamp
	Decimal
	List
	Struct
	Array
	Enum
)

func (t LogicalType) String() string {
	switch t {
	case Null:
		return "NULL"
	case Bool:
		return "BOOL"
	case Int8:
		return "INT8"
	case Int16:
		return "INT16"
	case Int32:
		return "INT32"
	case Int64:
		return "INT64"
	case Int128:
		return "INT128"
	case Uint8:
		return "UINT8"
	case Uint16:
		return "UINT16"
	case Uint32:
		return "UINT32"
	case Uint64:
		return "UINT64"
	case Uint128:
		return "UINT128"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	case String:
		return "STRING"
	case Blob:
		return "BLOB"
	case Timestamp:
		return "TIMESTAMP"
	case Decimal:
		return "DECIMAL"
	case List:
		return "LIST"
	case Struct:
		return "STRUCT"
	case Array:
		return "ARRAY"
	case Enum:
		return "ENUM"
	default:
		return fmt.Sprintf("INVALID(%d)", uint8(t))
	}
}

// PhysicalType is the on-segment representation of a LogicalType. Several
// logical types share one physical representation (e.g. Timestamp and
// Enum are both stored as a fixed-width Int64/Uint32 physical slot);
// List, Struct, and Array never have a scalar physical representation of
// their own — they delegate storage to child columns (see
// storage/column.Data).
type PhysicalType uint8

const (
	PhysInvalid PhysicalType = iota
	PhysBool
	PhysInt8
	PhysInt16
	PhysInt32
	PhysInt64
	PhysInt128
	PhysUint8
	PhysUint16
	PhysUint32
	PhysUint64
	PhysUint128
	PhysFloat32
	PhysFloat64
	// PhysVarlen covers String and Blob: a segment of this physical type
	// stores variable-length byte payloads rather than a fixed-width
	// array, per spec.md §4.4's note that variable-width types do not
	// support in-place update_row.
	PhysVarlen
	// PhysNested covers List/Struct/Array: the segment itself carries no
	// values and instead bookkeeps offsets/validity for one or more
	// child columns (spec.md §4.5).
	PhysNested
)

// Physical returns the on-segment representation for t.
func (t LogicalType) Physical() PhysicalType {
	switch t {
	case Bool:
		return PhysBool
	case Int8:
		return PhysInt8
	case Int16:
		return PhysInt16
	case Int32:
		return PhysInt32
	case Int64, Timestamp:
		return PhysInt64
	case Int128:
		return PhysInt128
	case Uint8:
		return PhysUint8
	case Uint16:
		return PhysUint16
	case Uint32, Enum:
		return PhysUint32
	case Uint64:
		return PhysUint64
	case Uint128:
		return PhysUint128
	case Float:
		return PhysFloat32
	case Double, Decimal:
		return PhysFloat64
	case String, Blob:
		return PhysVarlen
	case List, Struct, Array:
		return PhysNested
	default:
		return PhysInvalid
	}
}

// Size returns the fixed byte width of one value of physical type t, or 0
// for variable-width/nested types (PhysVarlen, PhysNested), which carry
// no fixed per-row size.
func (t PhysicalType) Size() int {
	switch t {
	case PhysBool, PhysInt8, PhysUint8:
		return 1
	case PhysInt16, PhysUint16:
		return 2
	case PhysInt32, PhysUint32, PhysFloat32:
		return 4
	case PhysInt64, PhysUint64, PhysFloat64:
		return 8
	case PhysInt128, PhysUint128:
		return 16
	default:
		return 0
	}
}

// FixedWidth reports whether t supports in-place update_row (spec.md
// §4.4): true for every physical type except PhysVarlen and PhysNested.
func (t PhysicalType) FixedWidth() bool {
	return t != PhysVarlen && t != PhysNested
}

// StructField names one field of a Struct-typed column or value.
type StructField struct {
	Name string
	Type LogicalType
}
