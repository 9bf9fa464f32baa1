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
	"reflect"
	"sort"
	"testing"

	"github.com/obxdb/obx/value"
)

func mustInt64s(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestBTreeInsertFindEq(t *testing.T) {
	bt := NewBTree("idx", []string{"id"})
	bt.Insert(value.NewInt64(10), 1)
	bt.Insert(value.NewInt64(10), 2)
	bt.Insert(value.NewInt64(20), 3)

	got := mustInt64s(bt.Find(Eq, value.NewInt64(10)))
	want := []int64{1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Find(Eq, 10) = %v, want %v", got, want)
	}
	if got := bt.Find(Eq, value.NewInt64(99)); got != nil {
		t.Fatalf("Find(Eq, 99) = %v, want nil", got)
	}
}

func TestBTreeInsertIdempotent(t *testing.T) {
	bt := NewBTree("idx", []string{"id"})
	bt.Insert(value.NewInt64(5), 1)
	bt.Insert(value.NewInt64(5), 1)
	bt.Insert(value.NewInt64(5), 1)

	got := bt.Find(Eq, value.NewInt64(5))
	if len(got) != 1 {
		t.Fatalf("Find(Eq, 5) = %v, want exactly one row (idempotent insert)", got)
	}
}

// spec.md §8 testable property 11: range bounds for gt/lt/gte/lte/ne
// return the row IDs expected for the inserted keys.
func TestBTreeRangeBounds(t *testing.T) {
	bt := NewBTree("idx", []string{"id"})
	values := []int64{10, 20, 30, 40, 50}
	for i, v := range values {
		bt.Insert(value.NewInt64(v), int64(i+1))
	}

	cases := []struct {
		op   CompareOp
		key  int64
		want []int64
	}{
		{Gt, 30, []int64{4, 5}},
		{Lt, 30, []int64{1, 2}},
		{Gte, 30, []int64{3, 4, 5}},
		{Lte, 30, []int64{1, 2, 3}},
		{Ne, 30, []int64{1, 2, 4, 5}},
		{Eq, 30, []int64{3}},
	}
	for _, c := range cases {
		got := mustInt64s(bt.Find(c.op, value.NewInt64(c.key)))
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("Find(%v, %d) = %v, want %v", c.op, c.key, got, c.want)
		}
	}
}

func TestBTreeRemoveOnePair(t *testing.T) {
	bt := NewBTree("idx", []string{"id"})
	bt.Insert(value.NewInt64(1), 100)
	bt.Insert(value.NewInt64(1), 200)

	bt.Remove(value.NewInt64(1), 100, false)
	got := bt.Find(Eq, value.NewInt64(1))
	if !reflect.DeepEqual(got, []int64{200}) {
		t.Fatalf("after single-pair remove: Find = %v, want [200]", got)
	}
}

func TestBTreeRemoveAllForValue(t *testing.T) {
	bt := NewBTree("idx", []string{"id"})
	bt.Insert(value.NewInt64(1), 100)
	bt.Insert(value.NewInt64(1), 200)

	bt.Remove(value.NewInt64(1), 0, true)
	if got := bt.Find(Eq, value.NewInt64(1)); got != nil {
		t.Fatalf("after remove-all: Find = %v, want nil", got)
	}
	if bt.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", bt.Len())
	}
}

func TestBTreeStringKeys(t *testing.T) {
	bt := NewBTree("idx", []string{"name"})
	bt.Insert(value.NewString("bob"), 1)
	bt.Insert(value.NewString("alice"), 2)
	bt.Insert(value.NewString("carol"), 3)

	got := mustInt64s(bt.Find(Lt, value.NewString("carol")))
	want := []int64{1, 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Find(Lt, carol) = %v, want %v", got, want)
	}
}
