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

// AggregatePipelineSpec configures BuildAggregatePipeline's assembly of
// the match → group → sort → having → distinct → limit chain spec.md
// §4.11 names for a single leaf scan. Every stage is optional (a zero
// value skips it) except Scan, the one leaf every aggregate query needs.
type AggregatePipelineSpec struct {
	Where          []Predicate // match, applied directly against the scan
	GroupColumns   []int
	Aggs           []AggSpec
	Having         []Predicate // match, applied against group output columns
	SortKeys       []SortKey
	DistinctOn     []int
	DistinctWanted bool
	Limit          int // 0 means unlimited
}

// BuildAggregatePipeline wires scan into the match → group → sort →
// having → distinct → limit chain spec.md §4.11 describes, skipping any
// stage whose configuration is empty. This is operator_type.aggregate's
// coordinating role: a single node in the logical plan that expands
// into this whole chain during physical planning.
func BuildAggregatePipeline(scan Node, spec AggregatePipelineSpec) Node {
	n := scan
	if len(spec.Where) > 0 {
		n = NewMatch(n, spec.Where)
	}
	if len(spec.GroupColumns) > 0 || len(spec.Aggs) > 0 {
		n = NewGroup(n, spec.GroupColumns, spec.Aggs)
	}
	if len(spec.SortKeys) > 0 {
		n = NewSort(n, spec.SortKeys)
	}
	if len(spec.Having) > 0 {
		n = NewMatch(n, spec.Having)
	}
	if spec.DistinctWanted {
		n = NewDistinct(n, spec.DistinctOn)
	}
	if spec.Limit > 0 {
		n = NewLimit(n, spec.Limit)
	}
	return n
}
