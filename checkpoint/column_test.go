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
	"testing"

	"github.com/obxdb/obx/storage/column"
	"github.com/obxdb/obx/value"
)

func TestCheckpointColumnRoundTripsPrimitiveSegments(t *testing.T) {
	mgr := tempBlockManager(t)

	col := column.NewPrimitiveData(value.Int64)
	for _, v := range []int64{1, 2, 3, 4, 5} {
		if err := col.AppendValue(value.NewInt64(v)); err != nil {
			t.Fatalf("AppendValue: %v", err)
		}
	}

	pbm := NewPartialBlockManager(mgr)
	pcd, err := CheckpointColumn(col, pbm)
	if err != nil {
		t.Fatalf("CheckpointColumn: %v", err)
	}
	if err := pbm.FlushPartialBlocks(); err != nil {
		t.Fatalf("FlushPartialBlocks: %v", err)
	}
	if len(pcd.DataPointers) != 1 {
		t.Fatalf("len(DataPointers) = %d, want 1", len(pcd.DataPointers))
	}
	if !pcd.Statistics.HasStats || pcd.Statistics.Min.Int64() != 1 || pcd.Statistics.Max.Int64() != 5 {
		t.Fatalf("Statistics = %+v, want min=1 max=5", pcd.Statistics)
	}

	dp := pcd.DataPointers[0]
	loaded, err := column.LoadSegment(mgr, value.Int64, dp.RowStart, dp.TupleCount, dp.BlockPointer, dp.Compression, dp.SegmentSize, pcd.SegmentStatistics[0])
	if err != nil {
		t.Fatalf("LoadSegment: %v", err)
	}
	for i, want := range []int64{1, 2, 3, 4, 5} {
		v, err := loaded.FetchRow(i)
		if err != nil {
			t.Fatalf("FetchRow(%d): %v", i, err)
		}
		if v.Int64() != want {
			t.Fatalf("FetchRow(%d) = %d, want %d", i, v.Int64(), want)
		}
	}
}
