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

package index

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/obxdb/obx/date"
	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/value"
)

// This file encodes the [key, row_id] pairs spec.md §4.10 says the disk
// B+tree index serializes. The original serializes through MsgPack
// (core/b_plus_tree/msgpack_reader); other_examples/manifests/* only
// ship go.mod files with no MsgPack source to ground a real
// vmihailenco/msgpack dependency against, so this follows the same
// self-describing encoding/binary idiom as wal/codec.go and
// catalog/codec.go rather than fabricating that dependency.

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
		return 0, obxerr.Corrupted("index: truncated payload")
	}
	c := r.b[r.pos]
	r.pos++
	return c, nil
}

func (r *byteReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.b[r.pos:])
	if n <= 0 {
		return 0, obxerr.Corrupted("index: malformed uvarint in payload")
	}
	r.pos += n
	return v, nil
}

func (r *byteReader) varint() (int64, error) {
	v, n := binary.Varint(r.b[r.pos:])
	if n <= 0 {
		return 0, obxerr.Corrupted("index: malformed varint in payload")
	}
	r.pos += n
	return v, nil
}

func (r *byteReader) bytes(n uint64) ([]byte, error) {
	if uint64(r.pos)+n > uint64(len(r.b)) {
		return nil, obxerr.Corrupted("index: truncated byte payload")
	}
	out := append([]byte(nil), r.b[r.pos:r.pos+int(n)]...)
	r.pos += int(n)
	return out, nil
}

// encodeValue appends v's self-describing encoding to buf. Only the
// scalar types a disk index key can hold are supported; List/Array/
// Struct keys are rejected by the caller before this is reached.
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
	case value.Float:
		buf = putUvarint(buf, uint64(math.Float32bits(float32(v.Float64()))))
	case value.Double:
		buf = putUvarint(buf, math.Float64bits(v.Float64()))
	case value.String, value.Blob:
		buf = putBytes(buf, v.Bytes)
	case value.Timestamp:
		buf = putVarint(buf, v.Time().UnixNano())
	default:
		panic(fmt.Sprintf("index: encodeValue: unsupported key type %v", v.Type))
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
		return value.NewBlob(b), nil
	case value.Timestamp:
		n, err := r.varint()
		return value.NewTimestamp(date.Unix(0, n)), err
	default:
		return value.Value{}, obxerr.Corrupted("index: unsupported key type tag %d in payload", typByte)
	}
}

// encodeEntries serializes a whole disk index snapshot: entry count,
// then per entry the key value followed by its sorted row ID list.
func encodeEntries(entries []entry) []byte {
	buf := make([]byte, 0, 256)
	buf = putUvarint(buf, uint64(len(entries)))
	for _, e := range entries {
		buf = encodeValue(buf, e.key)
		buf = putUvarint(buf, uint64(len(e.rows)))
		for _, row := range e.rows {
			buf = putVarint(buf, row)
		}
	}
	return buf
}

func decodeEntries(raw []byte) ([]entry, error) {
	r := byteReader{b: raw}
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	entries := make([]entry, n)
	for i := range entries {
		key, err := decodeValue(&r)
		if err != nil {
			return nil, err
		}
		numRows, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		rows := make([]int64, numRows)
		for j := range rows {
			if rows[j], err = r.varint(); err != nil {
				return nil, err
			}
		}
		entries[i] = entry{key: key, rows: rows}
	}
	return entries, nil
}
