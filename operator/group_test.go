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

	"github.com/obxdb/obx/value"
)

func groupValueChunk(groups []int64, vals []int64) *value.Chunk {
	g := value.NewVector(value.Int64, len(groups))
	v := value.NewVector(value.Int64, len(vals))
	for i := range groups {
		g.Append(value.NewInt64(groups[i]))
		v.Append(value.NewInt64(vals[i]))
	}
	c, err := value.NewChunk([]*value.Vector{g, v})
	if err != nil {
		panic(err)
	}
	return c
}

func TestClassifyAgg(t *testing.T) {
	cases := map[string]BuiltinAgg{
		"sum": AggSum, "SUM": AggSum,
		"min": AggMin, "max": AggMax,
		"count": AggCount, "avg": AggAvg,
		"median": AggUnknown,
	}
	for name, want := range cases {
		if got := ClassifyAgg(name); got != want {
			t.Fatalf("ClassifyAgg(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestGroupSumCountMinMaxAvg(t *testing.T) {
	// groups: 1 -> {10, 20}; 2 -> {5}
	src := newStaticNode(groupValueChunk([]int64{1, 1, 2}, []int64{10, 20, 5}))
	g := NewGroup(src, []int{0}, []AggSpec{
		{Column: 1, Agg: AggSum},
		{Column: 1, Agg: AggCount},
		{Column: 1, Agg: AggMin},
		{Column: 1, Agg: AggMax},
		{Column: 1, Agg: AggAvg},
	})

	chunk, ok, err := g.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if chunk.Cardinality() != 2 {
		t.Fatalf("Cardinality() = %d, want 2", chunk.Cardinality())
	}

	byGroup := map[int64][]value.Value{}
	for i := 0; i < chunk.Cardinality(); i++ {
		row := chunk.Row(i)
		byGroup[row[0].Int64()] = row[1:]
	}

	g1 := byGroup[1]
	if g1[0].Int64() != 30 {
		t.Fatalf("group 1 sum = %d, want 30", g1[0].Int64())
	}
	if g1[1].Uint64() != 2 {
		t.Fatalf("group 1 count = %d, want 2", g1[1].Uint64())
	}
	if g1[2].Int64() != 10 {
		t.Fatalf("group 1 min = %d, want 10", g1[2].Int64())
	}
	if g1[3].Int64() != 20 {
		t.Fatalf("group 1 max = %d, want 20", g1[3].Int64())
	}
	if g1[4].Int64() != 15 {
		t.Fatalf("group 1 avg = %d, want 15", g1[4].Int64())
	}

	g2 := byGroup[2]
	if g2[0].Int64() != 5 || g2[1].Uint64() != 1 || g2[2].Int64() != 5 || g2[3].Int64() != 5 || g2[4].Int64() != 5 {
		t.Fatalf("group 2 = %v, want all 5s (single row)", g2)
	}
}

func TestGroupNoGroupColumnsOneImplicitGroup(t *testing.T) {
	src := newStaticNode(groupValueChunk([]int64{1, 2, 3}, []int64{1, 2, 3}))
	g := NewGroup(src, nil, []AggSpec{{Column: 1, Agg: AggSum}})
	chunk, ok, err := g.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if chunk.Cardinality() != 1 {
		t.Fatalf("Cardinality() = %d, want 1", chunk.Cardinality())
	}
	if got := chunk.Row(0)[0].Int64(); got != 6 {
		t.Fatalf("sum = %d, want 6", got)
	}
}
