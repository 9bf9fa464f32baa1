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

package value

import (
	"bytes"
	"fmt"

	"github.com/obxdb/obx/date"
)

// Int128 is a signed 128-bit integer, represented as a high/low pair the
// way the block manager and B+tree key extractor treat any other
// fixed-width physical type: two uint64 words, most significant first.
type Int128 struct {
	Hi int64
	Lo uint64
}

// Decimal is a scaled fixed-point decimal: Unscaled * 10^-Scale. This is a
// deliberate simplification of spec.md's arbitrary-precision decimal type
// (documented in DESIGN.md) — sufficient range for row storage and index
// comparisons without pulling in a big-decimal dependency the pack does
// not otherwise exercise.
type Decimal struct {
	Unscaled int64
	Scale    int32
}

// Value is a single logical-typed value plus its physical representation,
// per spec.md §3. The zero Value is a NULL of Invalid type; use the New*
// constructors to build typed values.
type Value struct {
	Type LogicalType
	Null bool

	i64 int64
	u64 uint64
	hi  int64 // high word for Int128/Uint128
	f64 float64
	ts  date.Time
	dec Decimal

	Bytes []byte // backing for String/Blob

	// List/Array elements, Struct fields (by position, names from the
	// owning column/table schema).
	Elems []Value
}

func NewNull(t LogicalType) Value       { return Value{Type: t, Null: true} }
func NewBool(v bool) Value              { i := int64(0); if v { i = 1 }; return Value{Type: Bool, i64: i} }
func NewInt8(v int8) Value              { return Value{Type: Int8, i64: int64(v)} }
func NewInt16(v int16) Value            { return Value{Type: Int16, i64: int64(v)} }
func NewInt32(v int32) Value            { return Value{Type: Int32, i64: int64(v)} }
func NewInt64(v int64) Value            { return Value{Type: Int64, i64: v} }
func NewInt128(hi int64, lo uint64) Value { return Value{Type: Int128, hi: hi, u64: lo} }
func NewUint8(v uint8) Value            { return Value{Type: Uint8, u64: uint64(v)} }
func NewUint16(v uint16) Value           { return Value{Type: Uint16, u64: uint64(v)} }
func NewUint32(v uint32) Value           { return Value{Type: Uint32, u64: uint64(v)} }
func NewUint64(v uint64) Value           { return Value{Type: Uint64, u64: v} }
func NewUint128(hi int64, lo uint64) Value {
	return Value{Type: Uint128, hi: hi, u64: lo}
}
func NewFloat(v float32) Value     { return Value{Type: Float, f64: float64(v)} }
func NewDouble(v float64) Value    { return Value{Type: Double, f64: v} }
func NewString(v string) Value     { return Value{Type: String, Bytes: []byte(v)} }
func NewBlob(v []byte) Value       { return Value{Type: Blob, Bytes: v} }
func NewTimestamp(v date.Time) Value { return Value{Type: Timestamp, ts: v} }
func NewDecimal(d Decimal) Value   { return Value{Type: Decimal, dec: d} }
func NewEnum(idx uint32, label string) Value {
	return Value{Type: Enum, u64: uint64(idx), Bytes: []byte(label)}
}
func NewList(elems []Value) Value   { return Value{Type: List, Elems: elems} }
func NewArray(elems []Value) Value  { return Value{Type: Array, Elems: elems} }
func NewStruct(fields []Value) Value { return Value{Type: Struct, Elems: fields} }

func (v Value) IsNull() bool { return v.Null }

// Int64 returns v's value as int64 for any integer/bool/enum type.
func (v Value) Int64() int64 {
	switch v.Type {
	case Bool, Int8, Int16, Int32, Int64:
		return v.i64
	case Uint8, Uint16, Uint32, Uint64, Enum:
		return int64(v.u64)
	case Int128, Uint128:
		return int64(v.u64)
	default:
		return 0
	}
}

// Uint64 returns v's value as uint64 for any unsigned/enum type.
func (v Value) Uint64() uint64 {
	switch v.Type {
	case Uint8, Uint16, Uint32, Uint64, Enum, Uint128:
		return v.u64
	case Bool, Int8, Int16, Int32, Int64, Int128:
		return uint64(v.i64)
	default:
		return 0
	}
}

// Int128Value returns the full 128-bit value for Int128/Uint128 types.
func (v Value) Int128Value() Int128 { return Int128{Hi: v.hi, Lo: v.u64} }

// Float64 returns v's value as float64 for Float/Double/Decimal types.
func (v Value) Float64() float64 {
	if v.Type == Decimal {
		scale := 1.0
		for i := int32(0); i < v.dec.Scale; i++ {
			scale *= 10
		}
		return float64(v.dec.Unscaled) / scale
	}
	return v.f64
}

func (v Value) Time() date.Time       { return v.ts }
func (v Value) DecimalValue() Decimal { return v.dec }
func (v Value) String2() string       { return string(v.Bytes) }

// Compare orders two non-null Values of the same LogicalType. It is used
// by segment/column statistics (min/max tracking), zonemap pruning, and
// the B+tree index's key ordering. Compare panics if a or b is NULL or
// their types differ — callers (statistics update, index insert) are
// expected to have already filtered nulls and type-checked their inputs.
func Compare(a, b Value) int {
	if a.Null || b.Null {
		panic("value: Compare called with a NULL value")
	}
	if a.Type != b.Type {
		panic(fmt.Sprintf("value: Compare type mismatch: %v vs %v", a.Type, b.Type))
	}
	switch a.Type {
	case Bool, Int8, Int16, Int32, Int64:
		return cmpInt64(a.i64, b.i64)
	case Uint8, Uint16, Uint32, Uint64, Enum:
		return cmpUint64(a.u64, b.u64)
	case Int128:
		return cmpInt128(a.Int128Value(), b.Int128Value())
	case Uint128:
		return cmpUint128(a.Int128Value(), b.Int128Value())
	case Float, Double:
		return cmpFloat64(a.f64, b.f64)
	case Decimal:
		return cmpFloat64(a.Float64(), b.Float64())
	case String, Blob:
		return bytes.Compare(a.Bytes, b.Bytes)
	case Timestamp:
		return cmpInt64(a.ts.UnixNano(), b.ts.UnixNano())
	default:
		panic(fmt.Sprintf("value: Compare unsupported type %v", a.Type))
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpUint64(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt128(a, b Int128) int {
	if a.Hi != b.Hi {
		return cmpInt64(a.Hi, b.Hi)
	}
	return cmpUint64(a.Lo, b.Lo)
}

func cmpUint128(a, b Int128) int {
	if a.Hi != b.Hi {
		return cmpInt64(a.Hi, b.Hi)
	}
	return cmpUint64(a.Lo, b.Lo)
}
