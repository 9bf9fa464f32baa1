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

package wal

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"sync"

	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/value"
)

// Writer appends framed records to one agent's WAL file: `[ length u32 BE
// ][ payload ][ crc32 u32 BE ]`, where payload is itself `[ compression
// tag byte ][ encodePayload's uvarint fields, optionally s2-compressed
// ]` (encodeFramePayload/decodeFramePayload). A per-agent mutex
// serializes record framing; fsync (when SyncToDisk is set) happens
// outside the mutex's critical path for the next record but still before
// WriteX returns, matching spec.md §7's "WAL writer: a per-agent mutex
// serializes record framing; fsync (if enabled) is outside the mutex."
// Grounded on wal_reader.cpp's frame shape (the reader and writer share
// the same wire format) and wal_utils.hpp's big-endian length/CRC
// encoding; s2 frame compression is this module's own addition, gated by
// obxconfig.Config.WAL.Compress.
type Writer struct {
	mu         sync.Mutex
	f          *os.File
	syncToDisk bool
	compress   bool
	nextID     uint64
	lastCRC    uint32
}

// OpenWriter opens (creating if necessary) the agent WAL file at path for
// appending. compress gates obxconfig.Config.WAL.Compress's s2 frame
// compression: when set, every record payload this Writer appends is
// s2-compressed (see encodeFramePayload); existing uncompressed frames in
// the file (written before the setting was enabled, or by a peer agent
// file with it disabled) remain readable regardless; per-frame tagging
// lets the two coexist.
func OpenWriter(path string, syncToDisk, compress bool) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, obxerr.IOFailed("wal: opening %s: %v", path, err)
	}
	w := &Writer{f: f, syncToDisk: syncToDisk, compress: compress, nextID: 1}
	if err := w.resumeFrom(f); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// resumeFrom scans an already-written file to recover nextID/lastCRC so
// a reopened writer continues the WAL ID and CRC chain rather than
// restarting it (which would corrupt the chain the reader validates).
func (w *Writer) resumeFrom(f *os.File) error {
	data, err := os.ReadFile(f.Name())
	if err != nil {
		return obxerr.IOFailed("wal: reading %s for resume: %v", f.Name(), err)
	}
	pos := 0
	for pos < len(data) {
		if pos+4 > len(data) {
			break
		}
		size := binary.BigEndian.Uint32(data[pos : pos+4])
		start := pos + 4
		end := start + int(size) + 4
		if end > len(data) {
			break
		}
		payload := data[start : start+int(size)]
		crcBytes := data[start+int(size) : end]
		crc := binary.BigEndian.Uint32(crcBytes)
		if crc32.ChecksumIEEE(payload) != crc {
			break
		}
		logical, err := decodeFramePayload(payload)
		if err == nil {
			var rec Record
			rec, err = decodePayload(logical)
			if err == nil {
				if rec.ID >= w.nextID {
					w.nextID = rec.ID + 1
				}
				w.lastCRC = crc
			}
		}
		pos = end
	}
	return nil
}

func (w *Writer) writeRecord(rec Record) (uint64, error) {
	w.mu.Lock()
	rec.ID = w.nextID
	rec.LastCRC32 = w.lastCRC
	payload := encodeFramePayload(encodePayload(rec), w.compress)
	crc := crc32.ChecksumIEEE(payload)

	frame := make([]byte, 4+len(payload)+4)
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(payload)))
	copy(frame[4:], payload)
	binary.BigEndian.PutUint32(frame[4+len(payload):], crc)

	_, err := w.f.Write(frame)
	if err == nil {
		w.nextID++
		w.lastCRC = crc
	}
	syncToDisk := w.syncToDisk
	w.mu.Unlock()

	if err != nil {
		return 0, obxerr.IOFailed("wal: writing record: %v", err)
	}
	if syncToDisk {
		if err := w.f.Sync(); err != nil {
			return 0, obxerr.IOFailed("wal: fsync: %v", err)
		}
	}
	return rec.ID, nil
}

// WriteInsert appends a PHYSICAL_INSERT record and returns its WAL ID.
func (w *Writer) WriteInsert(txnID uint64, db, table string, chunk *value.Chunk, rowStart, rowCount uint64) (uint64, error) {
	return w.writeRecord(Record{
		TransactionID: txnID,
		Type:          PhysicalInsert,
		Database:      db,
		Table:         table,
		Chunk:         chunk,
		RowStart:      rowStart,
		RowCount:      rowCount,
	})
}

// WriteDelete appends a PHYSICAL_DELETE record and returns its WAL ID.
func (w *Writer) WriteDelete(txnID uint64, db, table string, rowIDs []int64, rowCount uint64) (uint64, error) {
	return w.writeRecord(Record{
		TransactionID: txnID,
		Type:          PhysicalDelete,
		Database:      db,
		Table:         table,
		RowIDs:        rowIDs,
		RowCount:      rowCount,
	})
}

// WriteUpdate appends a PHYSICAL_UPDATE record and returns its WAL ID.
func (w *Writer) WriteUpdate(txnID uint64, db, table string, rowIDs []int64, chunk *value.Chunk, rowCount uint64) (uint64, error) {
	return w.writeRecord(Record{
		TransactionID: txnID,
		Type:          PhysicalUpdate,
		Database:      db,
		Table:         table,
		RowIDs:        rowIDs,
		Chunk:         chunk,
		RowCount:      rowCount,
	})
}

// WriteCommit appends a COMMIT marker finalizing txnID and returns its
// WAL ID.
func (w *Writer) WriteCommit(txnID uint64) (uint64, error) {
	return w.writeRecord(Record{TransactionID: txnID, Type: Commit})
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}
