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
	"fmt"
	"strings"

	"github.com/obxdb/obx/value"
)

// AggSpec names one aggregate column to compute: Agg applied to the
// child's Column, producing an output column of the same logical type
// (COUNT instead always produces Uint64, per finalizeState).
type AggSpec struct {
	Column int
	Agg    BuiltinAgg
}

// Group is the grouped-aggregate operator (operator_type.aggregate's
// "group" stage in spec.md §4.11): it buffers every chunk from its
// child, does a single pass assigning each row to a group key built from
// GroupColumns, and updates one aggState per (group, AggSpec) pair as it
// goes — the single-pass, dispatch-by-physical-type design
// grouped_aggregate.cpp's update_all/update_loop<T> describes. With no
// GroupColumns, every row belongs to one implicit group (a bare
// SELECT SUM(x) with no GROUP BY).
type Group struct {
	*Base
	child        Node
	groupColumns []int
	specs        []AggSpec
	done         bool
}

// NewGroup builds a grouped-aggregate operator over child.
func NewGroup(child Node, groupColumns []int, specs []AggSpec) *Group {
	return &Group{Base: NewBase(TypeGroup), child: child, groupColumns: groupColumns, specs: specs}
}

// groupKey renders a row's group-column values into a string key. Values
// are never ordered by this key (only equality matters for grouping), so
// a simple type-tagged textual join is sufficient and avoids needing a
// hashable Value representation.
func groupKey(row []value.Value, groupColumns []int) string {
	var b strings.Builder
	for i, c := range groupColumns {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		v := row[c]
		if v.IsNull() {
			b.WriteString("\x00NULL")
			continue
		}
		fmt.Fprintf(&b, "%v:%v", v.Type, valueText(v))
	}
	return b.String()
}

func valueText(v value.Value) string {
	switch v.Type.Physical() {
	case value.PhysFloat32, value.PhysFloat64:
		return fmt.Sprintf("%g", v.Float64())
	case value.PhysUint8, value.PhysUint16, value.PhysUint32, value.PhysUint64, value.PhysUint128:
		return fmt.Sprintf("%d", v.Uint64())
	case value.PhysVarlen:
		return string(v.Bytes)
	default:
		return fmt.Sprintf("%d", v.Int64())
	}
}

func (g *Group) Next() (*value.Chunk, bool, error) {
	g.Prepare()
	if g.done {
		return nil, false, nil
	}
	g.done = true
	g.MarkExecuted()

	chunks, err := Drain(g.child)
	if err != nil {
		return nil, false, err
	}
	if len(chunks) == 0 {
		// No input rows and no column types to build an output chunk
		// from; a bare COUNT(*) = 0 over a truly empty table is a
		// planner-level concern (it would supply the schema), not
		// something this operator can synthesize from nothing.
		return nil, false, nil
	}

	type groupEntry struct {
		keyRow []value.Value
		states []aggState
	}
	order := make([]string, 0)
	groups := make(map[string]*groupEntry)
	var colTypes []value.LogicalType

	for _, chunk := range chunks {
		if colTypes == nil {
			colTypes = make([]value.LogicalType, len(chunk.Columns))
			for i, c := range chunk.Columns {
				colTypes[i] = c.Type
			}
		}
		for r := 0; r < chunk.Cardinality(); r++ {
			row := chunk.Row(r)
			key := groupKey(row, g.groupColumns)
			ge, ok := groups[key]
			if !ok {
				keyRow := make([]value.Value, len(g.groupColumns))
				for i, c := range g.groupColumns {
					keyRow[i] = row[c]
				}
				ge = &groupEntry{keyRow: keyRow, states: make([]aggState, len(g.specs))}
				groups[key] = ge
				order = append(order, key)
			}
			for i, spec := range g.specs {
				updateState(&ge.states[i], spec.Agg, row[spec.Column])
			}
		}
	}

	n := len(order)
	vectors := make([]*value.Vector, len(g.groupColumns)+len(g.specs))
	for i, c := range g.groupColumns {
		vectors[i] = value.NewVector(colTypes[c], n)
	}
	for i, spec := range g.specs {
		outType := colTypes[spec.Column]
		if spec.Agg == AggCount {
			outType = value.Uint64
		}
		vectors[len(g.groupColumns)+i] = value.NewVector(outType, n)
	}

	for _, key := range order {
		ge := groups[key]
		for i, v := range ge.keyRow {
			vectors[i].Append(v)
		}
		for i, spec := range g.specs {
			outType := colTypes[spec.Column]
			vectors[len(g.groupColumns)+i].Append(finalizeState(&ge.states[i], spec.Agg, outType))
		}
	}

	chunk, err := value.NewChunk(vectors)
	if err != nil {
		return nil, false, err
	}
	if chunk.Cardinality() == 0 {
		return nil, false, nil
	}
	return chunk, true, nil
}
