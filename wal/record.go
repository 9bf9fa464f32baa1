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

// Package wal implements spec.md §4.8's write-ahead log: per-agent
// append-only files with framed, CRC-protected records, commit markers,
// and a reader that replays only the PHYSICAL records belonging to
// committed transactions. Grounded on
// original_source/services/wal/wal_reader.cpp/.hpp and wal_utils.hpp.
package wal

import "github.com/obxdb/obx/value"

// RecordType tags a WAL record's kind, per spec.md §4.8.
type RecordType uint8

const (
	// Data marks a legacy/logical record; readers skip it entirely.
	Data RecordType = iota
	PhysicalInsert
	PhysicalDelete
	PhysicalUpdate
	Commit
)

func (t RecordType) String() string {
	switch t {
	case Data:
		return "DATA"
	case PhysicalInsert:
		return "PHYSICAL_INSERT"
	case PhysicalDelete:
		return "PHYSICAL_DELETE"
	case PhysicalUpdate:
		return "PHYSICAL_UPDATE"
	case Commit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// Record is one decoded WAL record. Not every field is populated for
// every RecordType: Commit only sets LastCRC32/ID/TransactionID;
// PhysicalDelete never sets Chunk; PhysicalInsert never sets RowIDs.
type Record struct {
	LastCRC32     uint32 // the previous record's CRC32, for chain validation
	ID            uint64 // this record's WAL ID (monotonic per agent file)
	TransactionID uint64 // 0 is reserved for legacy/unshielded records
	Type          RecordType

	Database string
	Table    string

	Chunk    *value.Chunk // PHYSICAL_INSERT/PHYSICAL_UPDATE row data
	RowIDs   []int64      // PHYSICAL_DELETE/PHYSICAL_UPDATE target rows
	RowStart uint64       // PHYSICAL_INSERT
	RowCount uint64       // all PHYSICAL kinds
}

// IsPhysical reports whether r is one of the three PHYSICAL kinds the
// replay reader cares about.
func (r Record) IsPhysical() bool {
	switch r.Type {
	case PhysicalInsert, PhysicalDelete, PhysicalUpdate:
		return true
	default:
		return false
	}
}

// IsCommitMarker reports whether r is a COMMIT record.
func (r Record) IsCommitMarker() bool { return r.Type == Commit }

// encodePayload builds the self-describing array payload for r (the
// part of the frame that gets CRC32-protected), per spec.md §4.8:
// previous CRC, WAL ID, transaction ID, record-kind tag, then
// kind-specific fields.
func encodePayload(r Record) []byte {
	buf := make([]byte, 0, 64)
	buf = putUvarint(buf, uint64(r.LastCRC32))
	buf = putUvarint(buf, r.ID)
	if r.Type == Commit {
		buf = putUvarint(buf, r.TransactionID)
		return buf
	}
	buf = putUvarint(buf, r.TransactionID)
	buf = append(buf, byte(r.Type))
	buf = putString(buf, r.Database)
	buf = putString(buf, r.Table)
	switch r.Type {
	case PhysicalInsert:
		buf = encodeChunk(buf, r.Chunk)
		buf = putUvarint(buf, r.RowStart)
		buf = putUvarint(buf, r.RowCount)
	case PhysicalDelete:
		buf = putUvarint(buf, uint64(len(r.RowIDs)))
		for _, id := range r.RowIDs {
			buf = putVarint(buf, id)
		}
		buf = putUvarint(buf, r.RowCount)
	case PhysicalUpdate:
		buf = putUvarint(buf, uint64(len(r.RowIDs)))
		for _, id := range r.RowIDs {
			buf = putVarint(buf, id)
		}
		buf = encodeChunk(buf, r.Chunk)
		buf = putUvarint(buf, r.RowCount)
	default:
		// DATA / unrecognized: payload already written above, no further
		// fields. Readers treat these as legacy and ignore them.
	}
	return buf
}

// decodePayload parses a payload previously produced by encodePayload.
func decodePayload(raw []byte) (Record, error) {
	r := byteReader{b: raw}
	var rec Record

	lastCRC, err := r.uvarint()
	if err != nil {
		return Record{}, err
	}
	rec.LastCRC32 = uint32(lastCRC)

	rec.ID, err = r.uvarint()
	if err != nil {
		return Record{}, err
	}

	rec.TransactionID, err = r.uvarint()
	if err != nil {
		return Record{}, err
	}

	if r.pos >= len(raw) {
		// Array of length 3 (prev_crc, id, txn): a COMMIT marker.
		rec.Type = Commit
		return rec, nil
	}

	typByte, err := r.readByte()
	if err != nil {
		return Record{}, err
	}
	rec.Type = RecordType(typByte)

	dbLen, err := r.uvarint()
	if err != nil {
		return Record{}, err
	}
	dbBytes, err := r.bytes(dbLen)
	if err != nil {
		return Record{}, err
	}
	rec.Database = string(dbBytes)

	tableLen, err := r.uvarint()
	if err != nil {
		return Record{}, err
	}
	tableBytes, err := r.bytes(tableLen)
	if err != nil {
		return Record{}, err
	}
	rec.Table = string(tableBytes)

	switch rec.Type {
	case PhysicalInsert:
		rec.Chunk, err = decodeChunk(&r)
		if err != nil {
			return Record{}, err
		}
		rec.RowStart, err = r.uvarint()
		if err != nil {
			return Record{}, err
		}
		rec.RowCount, err = r.uvarint()
		if err != nil {
			return Record{}, err
		}
	case PhysicalDelete:
		n, err := r.uvarint()
		if err != nil {
			return Record{}, err
		}
		rec.RowIDs = make([]int64, n)
		for i := range rec.RowIDs {
			rec.RowIDs[i], err = r.varint()
			if err != nil {
				return Record{}, err
			}
		}
		rec.RowCount, err = r.uvarint()
		if err != nil {
			return Record{}, err
		}
	case PhysicalUpdate:
		n, err := r.uvarint()
		if err != nil {
			return Record{}, err
		}
		rec.RowIDs = make([]int64, n)
		for i := range rec.RowIDs {
			rec.RowIDs[i], err = r.varint()
			if err != nil {
				return Record{}, err
			}
		}
		rec.Chunk, err = decodeChunk(&r)
		if err != nil {
			return Record{}, err
		}
		rec.RowCount, err = r.uvarint()
		if err != nil {
			return Record{}, err
		}
	default:
		// Legacy logical DATA (or anything this reader does not
		// recognize): treated as DATA, replay ignores it.
		rec.Type = Data
		rec.TransactionID = 0
	}
	return rec, nil
}
