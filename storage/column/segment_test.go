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
	"path/filepath"
	"testing"

	"github.com/obxdb/obx/storage/block"
	"github.com/obxdb/obx/value"
)

func tempBlockManager(t *testing.T) block.Manager {
	t.Helper()
	m, err := block.Open(filepath.Join(t.TempDir(), "main.db"), 4096)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSegmentAppendScanFetch(t *testing.T) {
	seg := NewSegment(value.Int64, 0, 100)
	src := value.NewVector(value.Int64, 5)
	for _, v := range []int64{1, 2, 3, 4, 5} {
		src.Append(value.NewInt64(v))
	}
	if err := seg.Append(src, 0, 5); err != nil {
		t.Fatalf("Append: %v", err)
	}

	dst := value.NewVector(value.Int64, 5)
	if err := seg.Scan(dst, 0, 5); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	for i := 0; i < 5; i++ {
		if dst.Get(i).Int64() != int64(i+1) {
			t.Fatalf("Scan[%d] = %d, want %d", i, dst.Get(i).Int64(), i+1)
		}
	}

	v, err := seg.FetchRow(2)
	if err != nil || v.Int64() != 3 {
		t.Fatalf("FetchRow(2) = %v, %v, want 3", v.Int64(), err)
	}

	if err := seg.UpdateRow(2, value.NewInt64(99)); err != nil {
		t.Fatalf("UpdateRow: %v", err)
	}
	v, _ = seg.FetchRow(2)
	if v.Int64() != 99 {
		t.Fatalf("FetchRow after update = %d, want 99", v.Int64())
	}

	stats := seg.SegmentStatistics()
	if stats.Min.Int64() != 1 || stats.Max.Int64() != 5 {
		t.Fatalf("stats = [%d,%d], want [1,5]", stats.Min.Int64(), stats.Max.Int64())
	}
}

func TestSegmentVarlenUpdateUnsupported(t *testing.T) {
	seg := NewSegment(value.String, 0, 10)
	src := value.NewVector(value.String, 1)
	src.Append(value.NewString("hi"))
	if err := seg.Append(src, 0, 1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := seg.UpdateRow(0, value.NewString("bye")); err == nil {
		t.Fatalf("UpdateRow on varlen segment should fail")
	}
}

func TestSegmentCheckpointRoundTrip(t *testing.T) {
	mgr := tempBlockManager(t)

	seg := NewSegment(value.Int64, 0, 50)
	src := value.NewVector(value.Int64, 6)
	for _, v := range []int64{10, 10, 10, 20, 30, 30} {
		src.Append(value.NewInt64(v))
	}
	if err := seg.Append(src, 0, 6); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := seg.UpdateRow(1, value.Value{Type: value.Int64, Null: true}); err != nil {
		t.Fatalf("UpdateRow to NULL: %v", err)
	}

	ptr, kind, size, err := seg.Checkpoint(nil, mgr)
	if err != nil {
		t.Fatalf("Checkpoint: %v", err)
	}

	loaded, err := LoadSegment(mgr, value.Int64, 0, 6, ptr, kind, size, seg.SegmentStatistics())
	if err != nil {
		t.Fatalf("LoadSegment: %v", err)
	}

	want := []int64{10, 0, 10, 20, 30, 30}
	for i, w := range want {
		v, err := loaded.FetchRow(i)
		if err != nil {
			t.Fatalf("FetchRow(%d): %v", i, err)
		}
		if i == 1 {
			if !v.IsNull() {
				t.Fatalf("row 1 should be NULL after reload")
			}
			continue
		}
		if v.Int64() != w {
			t.Fatalf("FetchRow(%d) = %d, want %d", i, v.Int64(), w)
		}
	}
}

func TestColumnDataListRoundTrip(t *testing.T) {
	child := NewPrimitiveData(value.Int32)
	list := NewListData(child)

	rows := [][]int32{{1, 2, 3}, {}, {4, 5}}
	for _, r := range rows {
		elems := make([]value.Value, len(r))
		for i, v := range r {
			elems[i] = value.NewInt32(v)
		}
		if err := list.AppendValue(value.NewList(elems)); err != nil {
			t.Fatalf("AppendValue: %v", err)
		}
	}

	for i, r := range rows {
		v, err := list.FetchRow(uint64(i))
		if err != nil {
			t.Fatalf("FetchRow(%d): %v", i, err)
		}
		if len(v.Elems) != len(r) {
			t.Fatalf("row %d has %d elems, want %d", i, len(v.Elems), len(r))
		}
		for j, e := range v.Elems {
			if e.Int64() != int64(r[j]) {
				t.Fatalf("row %d elem %d = %d, want %d", i, j, e.Int64(), r[j])
			}
		}
	}
}

func TestColumnDataStructRoundTrip(t *testing.T) {
	s := NewStructData([]StructFieldData{
		{Name: "a", Data: NewPrimitiveData(value.Int64)},
		{Name: "b", Data: NewPrimitiveData(value.String)},
	})

	if err := s.AppendValue(value.NewStruct([]value.Value{value.NewInt64(42), value.NewString("x")})); err != nil {
		t.Fatalf("AppendValue: %v", err)
	}

	v, err := s.FetchRow(0)
	if err != nil {
		t.Fatalf("FetchRow: %v", err)
	}
	if v.Elems[0].Int64() != 42 || v.Elems[1].String2() != "x" {
		t.Fatalf("struct row = %v", v.Elems)
	}
}
