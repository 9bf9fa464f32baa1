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
	"testing"

	"github.com/obxdb/obx/value"
)

func TestColumnStatisticsMonotonicity(t *testing.T) {
	d := NewPrimitiveData(value.Int64)
	d.segmentCap = 4 // force several segments

	want := []int64{7, -3, 12, 4, 100, -50, 0, 9, 3, 41}
	for _, v := range want {
		if err := d.AppendValue(value.NewInt64(v)); err != nil {
			t.Fatalf("AppendValue: %v", err)
		}
	}

	cumulative := d.Statistics()

	var segMin, segMax int64 = want[0], want[0]
	for _, v := range want {
		if v < segMin {
			segMin = v
		}
		if v > segMax {
			segMax = v
		}
	}
	for _, seg := range d.segments {
		s := seg.SegmentStatistics()
		if !s.HasStats {
			continue
		}
		if value.Compare(cumulative.Min, s.Min) > 0 {
			t.Fatalf("column.min %v > segment min %v", cumulative.Min, s.Min)
		}
		if value.Compare(cumulative.Max, s.Max) < 0 {
			t.Fatalf("column.max %v < segment max %v", cumulative.Max, s.Max)
		}
	}
	if cumulative.Min.Int64() != segMin || cumulative.Max.Int64() != segMax {
		t.Fatalf("cumulative stats = [%d,%d], want [%d,%d]", cumulative.Min.Int64(), cumulative.Max.Int64(), segMin, segMax)
	}
}

func TestZonemapCorrectness(t *testing.T) {
	stats := Statistics{HasStats: true, Min: value.NewInt64(10), Max: value.NewInt64(20), RowCount: 5}

	cases := []struct {
		name string
		f    *Filter
		want ZonemapResult
	}{
		{"gt_hi_le_k", Compare(OpGT, value.NewInt64(20)), AlwaysFalse},
		{"lt_lo_ge_k", Compare(OpLT, value.NewInt64(10)), AlwaysFalse},
		{"eq_k_below_lo", Compare(OpEQ, value.NewInt64(5)), AlwaysFalse},
		{"eq_k_above_hi", Compare(OpEQ, value.NewInt64(25)), AlwaysFalse},
		{"eq_k_in_range_no_prune", Compare(OpEQ, value.NewInt64(15)), NoPruningPossible},
		{"gt_k_below_lo_always_true", Compare(OpGT, value.NewInt64(5)), AlwaysTrue},
		{"lt_k_above_hi_always_true", Compare(OpLT, value.NewInt64(25)), AlwaysTrue},
		{"gt_mid_no_prune", Compare(OpGT, value.NewInt64(15)), NoPruningPossible},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := CheckZonemap(c.f, stats); got != c.want {
				t.Fatalf("CheckZonemap(%s) = %v, want %v", c.name, got, c.want)
			}
		})
	}
}

func TestZonemapCombinators(t *testing.T) {
	stats := Statistics{HasStats: true, Min: value.NewInt64(10), Max: value.NewInt64(20), RowCount: 5}

	and := And(Compare(OpGTE, value.NewInt64(10)), Compare(OpLTE, value.NewInt64(20)))
	if got := CheckZonemap(and, stats); got != AlwaysTrue {
		t.Fatalf("AND of always-true legs = %v, want AlwaysTrue", got)
	}

	or := Or(Compare(OpGT, value.NewInt64(20)), Compare(OpLT, value.NewInt64(10)))
	if got := CheckZonemap(or, stats); got != AlwaysFalse {
		t.Fatalf("OR of always-false legs = %v, want AlwaysFalse", got)
	}

	not := Not(Compare(OpGT, value.NewInt64(20)))
	if got := CheckZonemap(not, stats); got != AlwaysTrue {
		t.Fatalf("NOT(always-false) = %v, want AlwaysTrue", got)
	}
}

func TestZonemapIsNull(t *testing.T) {
	allPresent := Statistics{HasStats: true, Min: value.NewInt64(1), Max: value.NewInt64(1), RowCount: 3, NullCount: 0}
	if got := CheckZonemap(Compare(OpIsNull, value.Value{}), allPresent); got != AlwaysFalse {
		t.Fatalf("IS NULL on a null-free segment = %v, want AlwaysFalse", got)
	}
	allNull := Statistics{RowCount: 3, NullCount: 3}
	if got := CheckZonemap(Compare(OpIsNull, value.Value{}), allNull); got != AlwaysTrue {
		t.Fatalf("IS NULL on an all-null segment = %v, want AlwaysTrue", got)
	}
}
