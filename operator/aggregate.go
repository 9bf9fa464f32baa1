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
	"strings"

	"github.com/obxdb/obx/value"
)

// BuiltinAgg identifies one of the five built-in aggregate functions
// spec.md §4.11 names, mirroring grouped_aggregate.hpp's builtin_agg
// enum. A registered-function registry (named but otherwise
// unspecified aggregates beyond the five built-ins) is represented by
// AggUnknown; a caller that needs custom aggregates plugs in its own
// update/finalize pair rather than extending this enum, since nothing
// in the retrieval pack survives describing that registry's shape.
type BuiltinAgg uint8

const (
	AggSum BuiltinAgg = iota
	AggMin
	AggMax
	AggCount
	AggAvg
	AggUnknown
)

// ClassifyAgg maps a function name to a BuiltinAgg, mirroring
// grouped_aggregate.cpp's classify(). Matching is case-insensitive
// since SQL aggregate names conventionally are.
func ClassifyAgg(funcName string) BuiltinAgg {
	switch strings.ToUpper(funcName) {
	case "SUM":
		return AggSum
	case "MIN":
		return AggMin
	case "MAX":
		return AggMax
	case "COUNT":
		return AggCount
	case "AVG":
		return AggAvg
	default:
		return AggUnknown
	}
}

// aggState is the per-group running state for one aggregate, mirroring
// raw_agg_state_t's tagged union: every physical type promotes into
// exactly one of i64/u64/f64 before updating state (grouped_aggregate's
// promote<T> pattern), so only one of the three fields is ever live for
// a given column's aggregate, selected by the column's physical type at
// update time and read back the same way at finalize time.
type aggState struct {
	i64         int64
	u64         uint64
	f64         float64
	count       uint64
	initialized bool
}

func (s *aggState) updateSumInt(v int64) {
	if !s.initialized {
		s.i64, s.initialized = v, true
		return
	}
	s.i64 += v
}

func (s *aggState) updateSumUint(v uint64) {
	if !s.initialized {
		s.u64, s.initialized = v, true
		return
	}
	s.u64 += v
}

func (s *aggState) updateSumFloat(v float64) {
	if !s.initialized {
		s.f64, s.initialized = v, true
		return
	}
	s.f64 += v
}

func (s *aggState) updateMinInt(v int64) {
	if !s.initialized || v < s.i64 {
		s.i64 = v
	}
	s.initialized = true
}

func (s *aggState) updateMinUint(v uint64) {
	if !s.initialized || v < s.u64 {
		s.u64 = v
	}
	s.initialized = true
}

func (s *aggState) updateMinFloat(v float64) {
	if !s.initialized || v < s.f64 {
		s.f64 = v
	}
	s.initialized = true
}

func (s *aggState) updateMaxInt(v int64) {
	if !s.initialized || v > s.i64 {
		s.i64 = v
	}
	s.initialized = true
}

func (s *aggState) updateMaxUint(v uint64) {
	if !s.initialized || v > s.u64 {
		s.u64 = v
	}
	s.initialized = true
}

func (s *aggState) updateMaxFloat(v float64) {
	if !s.initialized || v > s.f64 {
		s.f64 = v
	}
	s.initialized = true
}

func (s *aggState) updateCount() {
	s.count++
	s.initialized = true
}

// updateAvg accumulates both a running sum (in the field matching v's
// promoted kind) and a running count, mirroring update_avg's
// sum-plus-count bookkeeping; finalizeState divides the two back out.
func (s *aggState) updateAvgInt(v int64) {
	s.i64 += v
	s.count++
	s.initialized = true
}

func (s *aggState) updateAvgUint(v uint64) {
	s.u64 += v
	s.count++
	s.initialized = true
}

func (s *aggState) updateAvgFloat(v float64) {
	s.f64 += v
	s.count++
	s.initialized = true
}

// updateState advances state for one input value val under agg,
// promoting val to int64/uint64/double by its logical type's physical
// representation first (promote<T> in grouped_aggregate.cpp). COUNT
// ignores val entirely, matching the source's "no column data needed"
// special case.
func updateState(state *aggState, agg BuiltinAgg, val value.Value) {
	if agg == AggCount {
		state.updateCount()
		return
	}
	if val.IsNull() {
		return
	}
	switch val.Type.Physical() {
	case value.PhysFloat32, value.PhysFloat64:
		v := val.Float64()
		switch agg {
		case AggSum:
			state.updateSumFloat(v)
		case AggMin:
			state.updateMinFloat(v)
		case AggMax:
			state.updateMaxFloat(v)
		case AggAvg:
			state.updateAvgFloat(v)
		}
	case value.PhysUint8, value.PhysUint16, value.PhysUint32, value.PhysUint64, value.PhysUint128:
		v := val.Uint64()
		switch agg {
		case AggSum:
			state.updateSumUint(v)
		case AggMin:
			state.updateMinUint(v)
		case AggMax:
			state.updateMaxUint(v)
		case AggAvg:
			state.updateAvgUint(v)
		}
	default:
		v := val.Int64()
		switch agg {
		case AggSum:
			state.updateSumInt(v)
		case AggMin:
			state.updateMinInt(v)
		case AggMax:
			state.updateMaxInt(v)
		case AggAvg:
			state.updateAvgInt(v)
		}
	}
}

// finalizeState narrows a finished aggState back to colType, mirroring
// finalize_state: NA (NULL) for an aggregate that never saw a row,
// state.count directly for COUNT, state divided by count for AVG, and
// the live i64/u64/f64 field for SUM/MIN/MAX.
func finalizeState(state *aggState, agg BuiltinAgg, colType value.LogicalType) value.Value {
	if agg == AggCount {
		return value.NewUint64(state.count)
	}
	if !state.initialized {
		return value.NewNull(colType)
	}
	if agg == AggAvg {
		switch colType.Physical() {
		case value.PhysFloat32, value.PhysFloat64:
			return narrowFloat(state.f64/float64(state.count), colType)
		case value.PhysUint8, value.PhysUint16, value.PhysUint32, value.PhysUint64, value.PhysUint128:
			return narrowUint(state.u64/state.count, colType)
		default:
			return narrowInt(state.i64/int64(state.count), colType)
		}
	}
	switch colType.Physical() {
	case value.PhysFloat32, value.PhysFloat64:
		return narrowFloat(state.f64, colType)
	case value.PhysUint8, value.PhysUint16, value.PhysUint32, value.PhysUint64, value.PhysUint128:
		return narrowUint(state.u64, colType)
	default:
		return narrowInt(state.i64, colType)
	}
}

func narrowInt(v int64, t value.LogicalType) value.Value {
	switch t {
	case value.Int8:
		return value.NewInt8(int8(v))
	case value.Int16:
		return value.NewInt16(int16(v))
	case value.Int32:
		return value.NewInt32(int32(v))
	default:
		return value.NewInt64(v)
	}
}

func narrowUint(v uint64, t value.LogicalType) value.Value {
	switch t {
	case value.Uint8:
		return value.NewUint8(uint8(v))
	case value.Uint16:
		return value.NewUint16(uint16(v))
	case value.Uint32:
		return value.NewUint32(uint32(v))
	default:
		return value.NewUint64(v)
	}
}

func narrowFloat(v float64, t value.LogicalType) value.Value {
	if t == value.Float {
		return value.NewFloat(float32(v))
	}
	return value.NewDouble(v)
}
