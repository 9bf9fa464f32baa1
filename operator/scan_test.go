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

package operator

import (
	"testing"

	"github.com/obxdb/obx/index"
	"github.com/obxdb/obx/storage/table"
	"github.com/obxdb/obx/value"
)

func TestScanYieldsOneChunkPerRowGroupThenExhausts(t *testing.T) {
	tbl := table.NewDataTable([]value.LogicalType{value.Int64}, 2)
	var state table.AppendState
	tbl.AppendLock(&state)
	if err := tbl.Append(intChunk(1, 2, 3, 4, 5), &state); err != nil {
		t.Fatalf("Append: %v", err)
	}
	tbl.FinalizeAppend(&state, 1)
	tbl.AppendUnlock()

	s := NewScan(tbl, []int{0}, ^uint64(0))
	groups := 0
	rows := 0
	for {
		chunk, ok, err := s.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		groups++
		rows += chunk.Cardinality()
	}
	if rows != 5 {
		t.Fatalf("total rows = %d, want 5", rows)
	}
	if groups != 3 { // capacity 2: groups of 2,2,1
		t.Fatalf("groups = %d, want 3", groups)
	}
	if !s.IsExecuted() {
		t.Fatal("IsExecuted() = false after exhaustion")
	}
}

func TestIndexScanFetchesMatchingRows(t *testing.T) {
	tbl := table.NewDataTable([]value.LogicalType{value.Int64}, 8)
	var state table.AppendState
	tbl.AppendLock(&state)
	if err := tbl.Append(intChunk(10, 20, 30), &state); err != nil {
		t.Fatalf("Append: %v", err)
	}
	tbl.FinalizeAppend(&state, 1)
	tbl.AppendUnlock()

	idx := index.NewBTree("by_val", []string{"val"})
	idx.Insert(value.NewInt64(20), 1)

	is := NewIndexScan(tbl, idx, index.Eq, value.NewInt64(20), []int{0}, ^uint64(0))
	chunk, ok, err := is.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if chunk.Cardinality() != 1 || chunk.Row(0)[0].Int64() != 20 {
		t.Fatalf("chunk = %v, want one row with value 20", chunk)
	}
	if _, ok, _ := is.Next(); ok {
		t.Fatal("second Next() = true, want exhausted")
	}
}
