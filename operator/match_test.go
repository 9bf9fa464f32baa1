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

func TestMatchPrunesAndSkipsEmptyChunks(t *testing.T) {
	src := newStaticNode(intChunk(1, 2, 3), intChunk(4, 5))
	m := NewMatch(src, []Predicate{{Column: 0, Op: index.Gt, Literal: value.NewInt64(3)}})

	chunk, ok, err := m.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok {
		t.Fatal("Next() = false, want a chunk with rows > 3")
	}
	var got []int64
	for i := 0; i < chunk.Cardinality(); i++ {
		got = append(got, chunk.Row(i)[0].Int64())
	}
	want := []int64{4, 5}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v, want %v", got, want)
	}
	if _, ok, _ := m.Next(); ok {
		t.Fatal("Next() after exhaustion = true")
	}
}

func TestMatchAllPredicatesAnd(t *testing.T) {
	src := newStaticNode(intChunk(1, 2, 3, 4))
	m := NewMatch(src, []Predicate{
		{Column: 0, Op: index.Gte, Literal: value.NewInt64(2)},
		{Column: 0, Op: index.Lte, Literal: value.NewInt64(3)},
	})
	chunk, ok, err := m.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if chunk.Cardinality() != 2 || chunk.Row(0)[0].Int64() != 2 || chunk.Row(1)[0].Int64() != 3 {
		t.Fatalf("chunk = %v, want rows [2,3]", chunk)
	}
}
