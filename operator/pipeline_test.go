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

func TestLimitCapsAcrossChunks(t *testing.T) {
	src := newStaticNode(intChunk(1, 2, 3), intChunk(4, 5))
	l := NewLimit(src, 4)

	var got []int64
	for {
		chunk, ok, err := l.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if !ok {
			break
		}
		for i := 0; i < chunk.Cardinality(); i++ {
			got = append(got, chunk.Row(i)[0].Int64())
		}
	}
	want := []int64{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i, w := range want {
		if got[i] != w {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestBuildAggregatePipelineFullChain(t *testing.T) {
	// groups: 1 -> {10, 20}; 2 -> {5}; filter keeps only group 1 rows,
	// then HAVING drops nothing, sort descending by sum, limit 1.
	src := newStaticNode(groupValueChunk([]int64{1, 1, 2}, []int64{10, 20, 5}))
	spec := AggregatePipelineSpec{
		Where:        []Predicate{{Column: 0, Op: index.Ne, Literal: value.NewInt64(2)}},
		GroupColumns: []int{0},
		Aggs:         []AggSpec{{Column: 1, Agg: AggSum}},
		SortKeys:     []SortKey{{Column: 1, Desc: true}},
		Limit:        1,
	}
	pipeline := BuildAggregatePipeline(src, spec)

	chunk, ok, err := pipeline.Next()
	if err != nil || !ok {
		t.Fatalf("Next: ok=%v err=%v", ok, err)
	}
	if chunk.Cardinality() != 1 {
		t.Fatalf("Cardinality() = %d, want 1", chunk.Cardinality())
	}
	row := chunk.Row(0)
	if row[0].Int64() != 1 || row[1].Int64() != 30 {
		t.Fatalf("row = %v, want group=1 sum=30", row)
	}
}
