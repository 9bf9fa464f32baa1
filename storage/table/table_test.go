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

package table

import (
	"testing"

	"github.com/obxdb/obx/value"
)

func insertN(t *testing.T, table *DataTable, n int, commitID uint64) {
	t.Helper()
	vec := value.NewVector(value.Int64, n)
	for i := 0; i < n; i++ {
		vec.Append(value.NewInt64(int64(i)))
	}
	chunk, err := value.NewChunk([]*value.Vector{vec})
	if err != nil {
		t.Fatalf("NewChunk: %v", err)
	}
	var state AppendState
	table.AppendLock(&state)
	defer table.AppendUnlock()
	if err := table.InitializeAppend(&state); err != nil {
		t.Fatalf("InitializeAppend: %v", err)
	}
	if err := table.Append(chunk, &state); err != nil {
		t.Fatalf("Append: %v", err)
	}
	table.FinalizeAppend(&state, commitID)
}

func TestMultiRowGroupScan(t *testing.T) {
	capacity := uint64(8)
	table := NewDataTable([]value.LogicalType{value.Int64}, capacity)
	n := int(3*capacity) + 2
	insertN(t, table, n, 1)

	state := table.CreateParallelScanState()
	wantGroups := (n + int(capacity) - 1) / int(capacity)

	seen := make(map[int64]bool)
	nonEmpty := 0
	for i := 0; i < wantGroups+1; i++ {
		chunk, ok, err := table.NextParallelChunk(state, []int{0}, ^uint64(0))
		if err != nil {
			t.Fatalf("NextParallelChunk: %v", err)
		}
		if !ok {
			continue
		}
		nonEmpty++
		for r := 0; r < chunk.Cardinality(); r++ {
			seen[chunk.Columns[0].Get(r).Int64()] = true
		}
	}
	if nonEmpty != wantGroups {
		t.Fatalf("non-empty chunks = %d, want %d", nonEmpty, wantGroups)
	}
	if len(seen) != n {
		t.Fatalf("union of scanned rows = %d distinct values, want %d", len(seen), n)
	}
	// one further call must also report no more chunks.
	if _, ok, _ := table.NextParallelChunk(state, []int{0}, ^uint64(0)); ok {
		t.Fatalf("scan state should be exhausted")
	}
}

func TestVisibilityMVCC(t *testing.T) {
	table := NewDataTable([]value.LogicalType{value.Int64}, 1024)
	insertN(t, table, 5, 10) // committed at commit ID 10

	if !table.Visible(0, 10) {
		t.Fatalf("row should be visible to a reader at its own commit ID")
	}
	if table.Visible(0, 9) {
		t.Fatalf("row should not be visible to a reader started before its commit")
	}
	if !table.Visible(0, 20) {
		t.Fatalf("row should stay visible to a later reader")
	}

	g, offset, ok := table.groupFor(0)
	if !ok {
		t.Fatalf("groupFor(0) not found")
	}
	if err := g.Versions.Tombstone(offset, 15); err != nil {
		t.Fatalf("Tombstone: %v", err)
	}
	if !table.Visible(0, 12) {
		t.Fatalf("row should still be visible to a reader before the tombstoning commit")
	}
	if table.Visible(0, 15) {
		t.Fatalf("row should not be visible to a reader at/after the tombstoning commit")
	}
}

func TestUpdateAndDeleteRows(t *testing.T) {
	table := NewDataTable([]value.LogicalType{value.Int64}, 1024)
	insertN(t, table, 3, 1)

	if err := table.Update(0, []uint64{1}, []value.Value{value.NewInt64(99)}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rows, err := table.Fetch([]int{0}, []uint64{0, 1, 2}, ^uint64(0))
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if rows[1][0].Int64() != 99 {
		t.Fatalf("updated row = %d, want 99", rows[1][0].Int64())
	}

	if err := table.DeleteRows([]uint64{2}, 5); err != nil {
		t.Fatalf("DeleteRows: %v", err)
	}
	if table.Visible(2, 10) {
		t.Fatalf("deleted row should not be visible after its tombstoning commit")
	}
}
