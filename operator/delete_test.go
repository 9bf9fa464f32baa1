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
	"github.com/obxdb/obx/value"
)

func TestRemoveTombstonesAndRetractsIndex(t *testing.T) {
	tbl := newTestTable(t)
	eng := index.NewEngine()
	byID := index.NewBTree("by_id", []string{"id"})
	eng.AddIndex("db", "t", byID)

	ins := NewInsert(newStaticNode(idNameChunk([]int64{1, 2}, []string{"a", "b"})), tbl, eng, []string{"id", "name"}, 10)
	if _, _, err := ins.Next(); err != nil {
		t.Fatalf("seed insert: %v", err)
	}

	delChunk := intChunk(1) // row ID 1 ("b")
	rm := NewRemove(newStaticNode(delChunk), tbl, eng, []int{0}, []string{"id"}, 20)
	if _, ok, err := rm.Next(); err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}

	if tbl.Visible(1, ^uint64(0)) {
		t.Fatal("row 1 still visible after remove")
	}
	if got := byID.Find(index.Eq, value.NewInt64(2)); got != nil {
		t.Fatalf("by_id.Find(2) after remove = %v, want nil", got)
	}
	if got := byID.Find(index.Eq, value.NewInt64(1)); len(got) != 1 || got[0] != 0 {
		t.Fatalf("by_id.Find(1) = %v, want [0] (untouched row)", got)
	}
}
