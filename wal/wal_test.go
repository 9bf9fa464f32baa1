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
	"os"
	"path/filepath"
	"testing"

	"github.com/obxdb/obx/value"
)

func testChunk(t *testing.T, vals ...int64) *value.Chunk {
	t.Helper()
	vec := value.NewVector(value.Int64, len(vals))
	for _, v := range vals {
		vec.Append(value.NewInt64(v))
	}
	chunk, err := value.NewChunk([]*value.Vector{vec})
	if err != nil {
		t.Fatalf("NewChunk: %v", err)
	}
	return chunk
}

func TestWriterReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".wal_0")

	w, err := OpenWriter(path, false, false)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	chunk := testChunk(t, 1, 2, 3)
	if _, err := w.WriteInsert(100, "db", "t", chunk, 0, 3); err != nil {
		t.Fatalf("WriteInsert: %v", err)
	}
	if _, err := w.WriteCommit(100); err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(dir, 1)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	records, err := r.ReadCommittedRecords(0)
	if err != nil {
		t.Fatalf("ReadCommittedRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].Type != PhysicalInsert {
		t.Fatalf("record type = %v, want PhysicalInsert", records[0].Type)
	}
	if records[0].Chunk.Cardinality() != 3 {
		t.Fatalf("replayed chunk cardinality = %d, want 3", records[0].Chunk.Cardinality())
	}
	if records[0].Chunk.Columns[0].Get(1).Int64() != 2 {
		t.Fatalf("replayed row 1 = %d, want 2", records[0].Chunk.Columns[0].Get(1).Int64())
	}
}

// TestCommittedOnlyReplay is spec.md §8 testable property 9: a replay must
// include all and only PHYSICAL records whose transaction has a matching
// COMMIT marker.
func TestCommittedOnlyReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".wal_0")

	w, err := OpenWriter(path, false, false)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	// txn 1: inserted, never committed (simulates a crash before commit).
	if _, err := w.WriteInsert(1, "db", "t", testChunk(t, 10), 0, 1); err != nil {
		t.Fatalf("WriteInsert txn1: %v", err)
	}
	// txn 2: inserted and committed.
	if _, err := w.WriteInsert(2, "db", "t", testChunk(t, 20), 1, 1); err != nil {
		t.Fatalf("WriteInsert txn2: %v", err)
	}
	if _, err := w.WriteCommit(2); err != nil {
		t.Fatalf("WriteCommit txn2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(dir, 1)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	records, err := r.ReadCommittedRecords(0)
	if err != nil {
		t.Fatalf("ReadCommittedRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1 (only the committed txn)", len(records))
	}
	if records[0].TransactionID != 2 {
		t.Fatalf("replayed transaction id = %d, want 2", records[0].TransactionID)
	}
}

// TestWriterReaderRoundTripCompressed is TestWriterReaderRoundTrip with
// obxconfig.Config.WAL.Compress's s2 frame compression enabled, checking
// that a compressed writer and the (compression-oblivious) reader still
// agree on the wire format.
func TestWriterReaderRoundTripCompressed(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".wal_0")

	w, err := OpenWriter(path, false, true)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	chunk := testChunk(t, 1, 2, 3)
	if _, err := w.WriteInsert(100, "db", "t", chunk, 0, 3); err != nil {
		t.Fatalf("WriteInsert: %v", err)
	}
	if _, err := w.WriteCommit(100); err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(dir, 1)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	records, err := r.ReadCommittedRecords(0)
	if err != nil {
		t.Fatalf("ReadCommittedRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].Chunk.Columns[0].Get(2).Int64() != 3 {
		t.Fatalf("replayed row 2 = %d, want 3", records[0].Chunk.Columns[0].Get(2).Int64())
	}

	// Reopening the same file must resume the ID/CRC chain correctly even
	// though its frames are s2-compressed (resumeFrom must decompress
	// before it can decode a record's ID).
	w2, err := OpenWriter(path, false, true)
	if err != nil {
		t.Fatalf("reopen OpenWriter: %v", err)
	}
	defer w2.Close()
	id, err := w2.WriteCommit(101)
	if err != nil {
		t.Fatalf("WriteCommit after reopen: %v", err)
	}
	if id <= records[0].ID {
		t.Fatalf("resumed WAL ID %d did not advance past %d", id, records[0].ID)
	}
}

// TestCRCGate is spec.md §8 testable property 10: flipping any bit in a
// record payload must cause that record and all later records in the
// same agent file to be rejected.
func TestCRCGate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".wal_0")

	w, err := OpenWriter(path, false, false)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if _, err := w.WriteInsert(1, "db", "t", testChunk(t, 1), 0, 1); err != nil {
		t.Fatalf("WriteInsert rec1: %v", err)
	}
	if _, err := w.WriteCommit(1); err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	if _, err := w.WriteInsert(2, "db", "t", testChunk(t, 2), 1, 1); err != nil {
		t.Fatalf("WriteInsert rec2: %v", err)
	}
	if _, err := w.WriteCommit(2); err != nil {
		t.Fatalf("WriteCommit txn2: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// Flip a bit inside the first record's payload (byte 10, well within
	// the 4-byte length prefix's payload region).
	data[10] ^= 0xff
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := OpenReader(dir, 1)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	records, err := r.ReadCommittedRecords(0)
	if err != nil {
		t.Fatalf("ReadCommittedRecords: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("len(records) = %d, want 0 (corruption should reject everything from that offset on)", len(records))
	}
}

func TestLegacyWalFallback(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, ".wal")

	w, err := OpenWriter(legacy, false, false)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if _, err := w.WriteInsert(1, "db", "t", testChunk(t, 7), 0, 1); err != nil {
		t.Fatalf("WriteInsert: %v", err)
	}
	if _, err := w.WriteCommit(1); err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(dir, 3) // no .wal_0/.wal_1/.wal_2 exist
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	records, err := r.ReadCommittedRecords(0)
	if err != nil {
		t.Fatalf("ReadCommittedRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1 via legacy fallback", len(records))
	}
}

func TestAfterIDResumesReplay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".wal_0")

	w, err := OpenWriter(path, false, false)
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	id1, err := w.WriteInsert(1, "db", "t", testChunk(t, 1), 0, 1)
	if err != nil {
		t.Fatalf("WriteInsert: %v", err)
	}
	if _, err := w.WriteCommit(1); err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	if _, err := w.WriteInsert(2, "db", "t", testChunk(t, 2), 1, 1); err != nil {
		t.Fatalf("WriteInsert: %v", err)
	}
	if _, err := w.WriteCommit(2); err != nil {
		t.Fatalf("WriteCommit: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenReader(dir, 1)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	records, err := r.ReadCommittedRecords(id1)
	if err != nil {
		t.Fatalf("ReadCommittedRecords: %v", err)
	}
	if len(records) != 1 || records[0].TransactionID != 2 {
		t.Fatalf("records after id1 = %+v, want just txn 2", records)
	}
}
