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
	"encoding/binary"
	"math"

	"github.com/obxdb/obx/date"
	"github.com/obxdb/obx/value"
)

// encodeRow renders one non-NULL value as a canonical byte slice: a fixed
// width for every PhysFixed* type, or a raw byte payload for PhysVarlen.
// This is the per-value unit the compression schemes in compress.go
// operate on (run lengths, dictionary entries). Nested types never reach
// here: Data dispatches List/Struct/Array to child columns before a
// segment ever sees them.
func encodeRow(v value.Value, logical value.LogicalType, physical value.PhysicalType) []byte {
	switch physical {
	case value.PhysBool:
		if v.Int64() != 0 {
			return []byte{1}
		}
		return []byte{0}
	case value.PhysInt8:
		return []byte{byte(v.Int64())}
	case value.PhysUint8:
		return []byte{byte(v.Uint64())}
	case value.PhysInt16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(v.Int64()))
		return b
	case value.PhysUint16:
		b := make([]byte, 2)
		binary.BigEndian.PutUint16(b, uint16(v.Uint64()))
		return b
	case value.PhysInt32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v.Int64()))
		return b
	case value.PhysUint32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, uint32(v.Uint64()))
		return b
	case value.PhysInt64:
		b := make([]byte, 8)
		if logical == value.Timestamp {
			binary.BigEndian.PutUint64(b, uint64(v.Time().UnixNano()))
		} else {
			binary.BigEndian.PutUint64(b, uint64(v.Int64()))
		}
		return b
	case value.PhysUint64:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, v.Uint64())
		return b
	case value.PhysInt128, value.PhysUint128:
		b := make([]byte, 16)
		i128 := v.Int128Value()
		binary.BigEndian.PutUint64(b, uint64(i128.Hi))
		binary.BigEndian.PutUint64(b[8:], i128.Lo)
		return b
	case value.PhysFloat32:
		b := make([]byte, 4)
		binary.BigEndian.PutUint32(b, math.Float32bits(float32(v.Float64())))
		return b
	case value.PhysFloat64:
		b := make([]byte, 12)
		if logical == value.Decimal {
			d := v.DecimalValue()
			binary.BigEndian.PutUint64(b, uint64(d.Unscaled))
			binary.BigEndian.PutUint32(b[8:], uint32(d.Scale))
			return b
		}
		binary.BigEndian.PutUint64(b, math.Float64bits(v.Float64()))
		return b // top 8 bytes hold the float64 bits, trailing 4 are padding
	case value.PhysVarlen:
		if logical == value.String {
			return append([]byte(nil), v.Bytes...)
		}
		return append([]byte(nil), v.Bytes...)
	default:
		return nil
	}
}

// decodeRow is the inverse of encodeRow for fixed-width physical types
// (PhysVarlen rows are decoded directly by the caller, since their length
// is carried out of band by the offsets array rather than fixed-width b).
func decodeRow(b []byte, logical value.LogicalType, physical value.PhysicalType) value.Value {
	switch physical {
	case value.PhysBool:
		return value.NewBool(b[0] != 0)
	case value.PhysInt8:
		return value.NewInt8(int8(b[0]))
	case value.PhysUint8:
		return value.NewUint8(b[0])
	case value.PhysInt16:
		return value.NewInt16(int16(binary.BigEndian.Uint16(b)))
	case value.PhysUint16:
		return value.NewUint16(binary.BigEndian.Uint16(b))
	case value.PhysInt32:
		return value.NewInt32(int32(binary.BigEndian.Uint32(b)))
	case value.PhysUint32:
		if logical == value.Enum {
			return value.NewEnum(binary.BigEndian.Uint32(b), "")
		}
		return value.NewUint32(binary.BigEndian.Uint32(b))
	case value.PhysInt64:
		v := int64(binary.BigEndian.Uint64(b))
		if logical == value.Timestamp {
			return value.NewTimestamp(date.Unix(0, v))
		}
		return value.NewInt64(v)
	case value.PhysUint64:
		return value.NewUint64(binary.BigEndian.Uint64(b))
	case value.PhysInt128:
		hi := int64(binary.BigEndian.Uint64(b))
		lo := binary.BigEndian.Uint64(b[8:])
		return value.NewInt128(hi, lo)
	case value.PhysUint128:
		hi := int64(binary.BigEndian.Uint64(b))
		lo := binary.BigEndian.Uint64(b[8:])
		return value.NewUint128(hi, lo)
	case value.PhysFloat32:
		return value.NewFloat(math.Float32frombits(binary.BigEndian.Uint32(b)))
	case value.PhysFloat64:
		if logical == value.Decimal {
			unscaled := int64(binary.BigEndian.Uint64(b))
			scale := int32(binary.BigEndian.Uint32(b[8:]))
			return value.NewDecimal(value.Decimal{Unscaled: unscaled, Scale: scale})
		}
		return value.NewDouble(math.Float64frombits(binary.BigEndian.Uint64(b)))
	default:
		return value.NewNull(logical)
	}
}
