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

import "github.com/obxdb/obx/value"

// Statistics is a segment or column's zonemap: a running min/max plus a
// null count, per spec.md §4.4's segment_statistics and §4.6's zonemap.
// Grounded on _examples/original_source/components/table/base_statistics.hpp
// (numeric_statistics_t/string_statistics_t min/max tracking) and the
// teacher's sparse index in ion/blockfmt/sparse.go.
type Statistics struct {
	HasStats  bool
	Min, Max  value.Value
	NullCount uint64
	RowCount  uint64
}

// NewStatistics returns an empty statistics accumulator.
func NewStatistics() Statistics {
	return Statistics{}
}

// Update folds one value into the running min/max/null-count.
func (s *Statistics) Update(v value.Value) {
	s.RowCount++
	if v.Null {
		s.NullCount++
		return
	}
	if !s.HasStats {
		s.Min, s.Max = v, v
		s.HasStats = true
		return
	}
	if value.Compare(v, s.Min) < 0 {
		s.Min = v
	}
	if value.Compare(v, s.Max) > 0 {
		s.Max = v
	}
}

// Merge folds another segment's statistics into s, as done when a column's
// cumulative statistics absorb a newly flushed segment (spec.md §4.4).
func (s *Statistics) Merge(o Statistics) {
	s.RowCount += o.RowCount
	s.NullCount += o.NullCount
	if !o.HasStats {
		return
	}
	if !s.HasStats {
		s.Min, s.Max, s.HasStats = o.Min, o.Max, true
		return
	}
	if value.Compare(o.Min, s.Min) < 0 {
		s.Min = o.Min
	}
	if value.Compare(o.Max, s.Max) > 0 {
		s.Max = o.Max
	}
}

// ZonemapResult is the outcome of checking a filter against a zonemap.
type ZonemapResult int

const (
	// NoPruningPossible means the filter may select some rows in the
	// segment; the segment must be scanned.
	NoPruningPossible ZonemapResult = iota
	// AlwaysTrue means every row in the segment satisfies the filter; the
	// segment can be returned without evaluating the filter per row.
	AlwaysTrue
	// AlwaysFalse means no row in the segment can satisfy the filter; the
	// segment can be skipped entirely.
	AlwaysFalse
)

// CompareOp is a leaf comparison operator for a Filter.
type CompareOp int

const (
	OpEQ CompareOp = iota
	OpNE
	OpLT
	OpLTE
	OpGT
	OpGTE
	OpIsNull
	OpIsNotNull
)

// FilterKind distinguishes leaf comparisons from the AND/OR/NOT combinators
// spec.md §4.6 requires zonemap pruning to support.
type FilterKind int

const (
	FilterLeaf FilterKind = iota
	FilterAnd
	FilterOr
	FilterNot
)

// Filter is a predicate tree over one column's values. A leaf node compares
// the column against Value using Op; AND/OR nodes combine two or more
// Children, and NOT negates its single child.
type Filter struct {
	Kind     FilterKind
	Op       CompareOp
	Value    value.Value
	Children []*Filter
}

// Compare builds a leaf comparison filter.
func Compare(op CompareOp, v value.Value) *Filter { return &Filter{Kind: FilterLeaf, Op: op, Value: v} }

// And builds a conjunction of children.
func And(children ...*Filter) *Filter { return &Filter{Kind: FilterAnd, Children: children} }

// Or builds a disjunction of children.
func Or(children ...*Filter) *Filter { return &Filter{Kind: FilterOr, Children: children} }

// Not negates child.
func Not(child *Filter) *Filter { return &Filter{Kind: FilterNot, Children: []*Filter{child}} }

// CheckZonemap evaluates f against stats without touching any row data,
// returning AlwaysTrue/AlwaysFalse when the zonemap alone decides the
// outcome for every row in the segment, or NoPruningPossible otherwise.
// Grounded on the pruning contract described in spec.md §4.6 and the
// teacher's sparse-index range checks in ion/blockfmt/sparse.go.
func CheckZonemap(f *Filter, stats Statistics) ZonemapResult {
	if f == nil {
		return NoPruningPossible
	}
	switch f.Kind {
	case FilterAnd:
		sawFalse, allTrue := false, true
		for _, c := range f.Children {
			switch CheckZonemap(c, stats) {
			case AlwaysFalse:
				sawFalse = true
			case NoPruningPossible:
				allTrue = false
			}
		}
		if sawFalse {
			return AlwaysFalse
		}
		if allTrue {
			return AlwaysTrue
		}
		return NoPruningPossible
	case FilterOr:
		sawTrue, allFalse := false, true
		for _, c := range f.Children {
			switch CheckZonemap(c, stats) {
			case AlwaysTrue:
				sawTrue = true
			case NoPruningPossible:
				allFalse = false
			}
		}
		if sawTrue {
			return AlwaysTrue
		}
		if allFalse {
			return AlwaysFalse
		}
		return NoPruningPossible
	case FilterNot:
		switch CheckZonemap(f.Children[0], stats) {
		case AlwaysTrue:
			return AlwaysFalse
		case AlwaysFalse:
			return AlwaysTrue
		default:
			return NoPruningPossible
		}
	}

	if f.Op == OpIsNull {
		if stats.NullCount == 0 {
			return AlwaysFalse
		}
		if stats.RowCount > 0 && stats.NullCount == stats.RowCount {
			return AlwaysTrue
		}
		return NoPruningPossible
	}
	if f.Op == OpIsNotNull {
		if stats.RowCount > 0 && stats.NullCount == stats.RowCount {
			return AlwaysFalse
		}
		if stats.NullCount == 0 {
			return AlwaysTrue
		}
		return NoPruningPossible
	}
	if !stats.HasStats {
		return NoPruningPossible
	}

	switch f.Op {
	case OpEQ:
		if value.Compare(f.Value, stats.Min) < 0 || value.Compare(f.Value, stats.Max) > 0 {
			return AlwaysFalse
		}
		if value.Compare(stats.Min, stats.Max) == 0 && value.Compare(stats.Min, f.Value) == 0 && stats.NullCount == 0 {
			return AlwaysTrue
		}
		return NoPruningPossible
	case OpNE:
		if value.Compare(stats.Min, stats.Max) == 0 && value.Compare(stats.Min, f.Value) == 0 {
			return AlwaysFalse
		}
		if (value.Compare(f.Value, stats.Min) < 0 || value.Compare(f.Value, stats.Max) > 0) && stats.NullCount == 0 {
			return AlwaysTrue
		}
		return NoPruningPossible
	case OpGT:
		if value.Compare(stats.Max, f.Value) <= 0 {
			return AlwaysFalse
		}
		if value.Compare(stats.Min, f.Value) > 0 && stats.NullCount == 0 {
			return AlwaysTrue
		}
		return NoPruningPossible
	case OpGTE:
		if value.Compare(stats.Max, f.Value) < 0 {
			return AlwaysFalse
		}
		if value.Compare(stats.Min, f.Value) >= 0 && stats.NullCount == 0 {
			return AlwaysTrue
		}
		return NoPruningPossible
	case OpLT:
		if value.Compare(stats.Min, f.Value) >= 0 {
			return AlwaysFalse
		}
		if value.Compare(stats.Max, f.Value) < 0 && stats.NullCount == 0 {
			return AlwaysTrue
		}
		return NoPruningPossible
	case OpLTE:
		if value.Compare(stats.Min, f.Value) > 0 {
			return AlwaysFalse
		}
		if value.Compare(stats.Max, f.Value) <= 0 && stats.NullCount == 0 {
			return AlwaysTrue
		}
		return NoPruningPossible
	default:
		return NoPruningPossible
	}
}
