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

package checkpoint

import (
	"encoding/binary"
	"math"

	"github.com/obxdb/obx/date"
	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/storage/block"
	"github.com/obxdb/obx/storage/column"
	"github.com/obxdb/obx/value"
)

// The table descriptor written alongside a checkpoint uses the same
// uvarint-framed, self-describing encoding wal/codec.go uses for WAL
// value payloads and catalog/codec.go uses for catalog records — there
// is no surviving persistent_column_data_t wire format in the retrieval
// pack to mirror, so this shape is original, reusing the idiom rather
// than the (unexported) implementation of either sibling package.

func putUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func putVarint(buf []byte, v int64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutVarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func putString(buf []byte, s string) []byte {
	buf = putUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func putBytes(buf []byte, b []byte) []byte {
	buf = putUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) readByte() (byte, error) {
	if r.pos >= len(r.b) {
		return 0, obxerr.Corrupted("checkpoint: truncated descriptor payload")
	}
	c := r.b[r.pos]
	r.pos++
	return c, nil
}

func (r *byteReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.b[r.pos:])
	if n <= 0 {
		return 0, obxerr.Corrupted("checkpoint: malformed uvarint in descriptor")
	}
	r.pos += n
	return v, nil
}

func (r *byteReader) varint() (int64, error) {
	v, n := binary.Varint(r.b[r.pos:])
	if n <= 0 {
		return 0, obxerr.Corrupted("checkpoint: malformed varint in descriptor")
	}
	r.pos += n
	return v, nil
}

func (r *byteReader) bytes(n uint64) ([]byte, error) {
	if uint64(r.pos)+n > uint64(len(r.b)) {
		return nil, obxerr.Corrupted("checkpoint: truncated byte payload")
	}
	out := r.b[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return out, nil
}

// encodeValue and decodeValue mirror wal/codec.go's self-describing value
// encoding; duplicated rather than shared because neither side exports
// it and a table descriptor has no reason to depend on the wal package.
func encodeValue(buf []byte, v value.Value) []byte {
	buf = append(buf, byte(v.Type))
	if v.Null {
		buf = append(buf, 1)
		return buf
	}
	buf = append(buf, 0)
	switch v.Type {
	case value.Bool, value.Int8, value.Int16, value.Int32, value.Int64:
		buf = putVarint(buf, v.Int64())
	case value.Uint8, value.Uint16, value.Uint32, value.Uint64:
		buf = putUvarint(buf, v.Uint64())
	case value.Enum:
		buf = putUvarint(buf, v.Uint64())
		buf = putString(buf, v.String2())
	case value.Int128, value.Uint128:
		w := v.Int128Value()
		buf = putVarint(buf, w.Hi)
		buf = putUvarint(buf, w.Lo)
	case value.Float:
		buf = putUvarint(buf, uint64(math.Float32bits(float32(v.Float64()))))
	case value.Double:
		buf = putUvarint(buf, math.Float64bits(v.Float64()))
	case value.String, value.Blob:
		buf = putBytes(buf, v.Bytes)
	case value.Timestamp:
		buf = putVarint(buf, v.Time().UnixNano())
	case value.Decimal:
		d := v.DecimalValue()
		buf = putVarint(buf, d.Unscaled)
		buf = putVarint(buf, int64(d.Scale))
	default:
		panic("checkpoint: encodeValue: unsupported scalar type " + v.Type.String())
	}
	return buf
}

func decodeValue(r *byteReader) (value.Value, error) {
	typByte, err := r.readByte()
	if err != nil {
		return value.Value{}, err
	}
	t := value.LogicalType(typByte)
	nullByte, err := r.readByte()
	if err != nil {
		return value.Value{}, err
	}
	if nullByte == 1 {
		return value.NewNull(t), nil
	}
	switch t {
	case value.Bool:
		n, err := r.varint()
		return value.NewBool(n != 0), err
	case value.Int8:
		n, err := r.varint()
		return value.NewInt8(int8(n)), err
	case value.Int16:
		n, err := r.varint()
		return value.NewInt16(int16(n)), err
	case value.Int32:
		n, err := r.varint()
		return value.NewInt32(int32(n)), err
	case value.Int64:
		n, err := r.varint()
		return value.NewInt64(n), err
	case value.Uint8:
		n, err := r.uvarint()
		return value.NewUint8(uint8(n)), err
	case value.Uint16:
		n, err := r.uvarint()
		return value.NewUint16(uint16(n)), err
	case value.Uint32:
		n, err := r.uvarint()
		return value.NewUint32(uint32(n)), err
	case value.Uint64:
		n, err := r.uvarint()
		return value.NewUint64(n), err
	case value.Enum:
		idx, err := r.uvarint()
		if err != nil {
			return value.Value{}, err
		}
		n, err := r.uvarint()
		if err != nil {
			return value.Value{}, err
		}
		label, err := r.bytes(n)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewEnum(uint32(idx), string(label)), nil
	case value.Int128:
		hi, err := r.varint()
		if err != nil {
			return value.Value{}, err
		}
		lo, err := r.uvarint()
		return value.NewInt128(hi, lo), err
	case value.Uint128:
		hi, err := r.varint()
		if err != nil {
			return value.Value{}, err
		}
		lo, err := r.uvarint()
		return value.NewUint128(hi, lo), err
	case value.Float:
		bits, err := r.uvarint()
		return value.NewFloat(math.Float32frombits(uint32(bits))), err
	case value.Double:
		bits, err := r.uvarint()
		return value.NewDouble(math.Float64frombits(bits)), err
	case value.String:
		n, err := r.uvarint()
		if err != nil {
			return value.Value{}, err
		}
		b, err := r.bytes(n)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewString(string(b)), nil
	case value.Blob:
		n, err := r.uvarint()
		if err != nil {
			return value.Value{}, err
		}
		b, err := r.bytes(n)
		if err != nil {
			return value.Value{}, err
		}
		return value.NewBlob(append([]byte(nil), b...)), nil
	case value.Timestamp:
		n, err := r.varint()
		return value.NewTimestamp(date.Unix(0, n)), err
	case value.Decimal:
		unscaled, err := r.varint()
		if err != nil {
			return value.Value{}, err
		}
		scale, err := r.varint()
		if err != nil {
			return value.Value{}, err
		}
		return value.NewDecimal(value.Decimal{Unscaled: unscaled, Scale: int32(scale)}), nil
	default:
		return value.Value{}, obxerr.Corrupted("checkpoint: unknown logical type tag %d in descriptor", typByte)
	}
}

func encodeStatistics(buf []byte, s column.Statistics) []byte {
	if !s.HasStats {
		buf = append(buf, 0)
		buf = putUvarint(buf, s.NullCount)
		buf = putUvarint(buf, s.RowCount)
		return buf
	}
	buf = append(buf, 1)
	buf = putUvarint(buf, s.NullCount)
	buf = putUvarint(buf, s.RowCount)
	buf = encodeValue(buf, s.Min)
	buf = encodeValue(buf, s.Max)
	return buf
}

func decodeStatistics(r *byteReader) (column.Statistics, error) {
	hasStats, err := r.readByte()
	if err != nil {
		return column.Statistics{}, err
	}
	nullCount, err := r.uvarint()
	if err != nil {
		return column.Statistics{}, err
	}
	rowCount, err := r.uvarint()
	if err != nil {
		return column.Statistics{}, err
	}
	s := column.Statistics{NullCount: nullCount, RowCount: rowCount}
	if hasStats == 0 {
		return s, nil
	}
	s.HasStats = true
	if s.Min, err = decodeValue(r); err != nil {
		return column.Statistics{}, err
	}
	if s.Max, err = decodeValue(r); err != nil {
		return column.Statistics{}, err
	}
	return s, nil
}

func encodeDataPointer(buf []byte, dp DataPointer) []byte {
	buf = putUvarint(buf, dp.RowStart)
	buf = putUvarint(buf, dp.TupleCount)
	buf = putUvarint(buf, dp.BlockPointer.BlockID)
	buf = putUvarint(buf, uint64(dp.BlockPointer.Offset))
	buf = append(buf, byte(dp.Compression))
	buf = putUvarint(buf, dp.SegmentSize)
	return buf
}

func decodeDataPointer(r *byteReader) (DataPointer, error) {
	var dp DataPointer
	var err error
	if dp.RowStart, err = r.uvarint(); err != nil {
		return DataPointer{}, err
	}
	if dp.TupleCount, err = r.uvarint(); err != nil {
		return DataPointer{}, err
	}
	blockID, err := r.uvarint()
	if err != nil {
		return DataPointer{}, err
	}
	offset, err := r.uvarint()
	if err != nil {
		return DataPointer{}, err
	}
	dp.BlockPointer = block.Pointer{BlockID: blockID, Offset: uint32(offset)}
	kindByte, err := r.readByte()
	if err != nil {
		return DataPointer{}, err
	}
	dp.Compression = column.CompressionKind(kindByte)
	if dp.SegmentSize, err = r.uvarint(); err != nil {
		return DataPointer{}, err
	}
	return dp, nil
}

func encodePersistentColumnData(buf []byte, pcd PersistentColumnData) []byte {
	buf = putUvarint(buf, uint64(len(pcd.DataPointers)))
	for _, dp := range pcd.DataPointers {
		buf = encodeDataPointer(buf, dp)
	}
	buf = putUvarint(buf, uint64(len(pcd.SegmentStatistics)))
	for _, s := range pcd.SegmentStatistics {
		buf = encodeStatistics(buf, s)
	}
	buf = encodeStatistics(buf, pcd.Statistics)

	buf = putUvarint(buf, uint64(len(pcd.Children)))
	for i, child := range pcd.Children {
		name := ""
		if i < len(pcd.FieldNames) {
			name = pcd.FieldNames[i]
		}
		buf = putString(buf, name)
		buf = encodePersistentColumnData(buf, child)
	}
	return buf
}

func decodePersistentColumnData(r *byteReader) (PersistentColumnData, error) {
	var pcd PersistentColumnData

	numPtrs, err := r.uvarint()
	if err != nil {
		return pcd, err
	}
	pcd.DataPointers = make([]DataPointer, numPtrs)
	for i := range pcd.DataPointers {
		if pcd.DataPointers[i], err = decodeDataPointer(r); err != nil {
			return pcd, err
		}
	}

	numStats, err := r.uvarint()
	if err != nil {
		return pcd, err
	}
	pcd.SegmentStatistics = make([]column.Statistics, numStats)
	for i := range pcd.SegmentStatistics {
		if pcd.SegmentStatistics[i], err = decodeStatistics(r); err != nil {
			return pcd, err
		}
	}

	if pcd.Statistics, err = decodeStatistics(r); err != nil {
		return pcd, err
	}

	numChildren, err := r.uvarint()
	if err != nil {
		return pcd, err
	}
	for i := uint64(0); i < numChildren; i++ {
		name, err := r.str()
		if err != nil {
			return pcd, err
		}
		child, err := decodePersistentColumnData(r)
		if err != nil {
			return pcd, err
		}
		if name != "" {
			pcd.FieldNames = append(pcd.FieldNames, name)
		}
		pcd.Children = append(pcd.Children, child)
	}
	return pcd, nil
}

func (r *byteReader) str() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
