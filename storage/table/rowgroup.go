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

// Package table implements spec.md §4.6: row groups, the row version
// manager tombstone model, and the data table append/scan/fetch/update
// API that operators drive. Grounded on
// _examples/original_source/components/table/transaction.cpp/.hpp for the
// append_info/commit bookkeeping shape; row_group_t and data_table_t have
// no surviving source in the retrieval pack, so their API is taken
// directly from spec.md §4.6's prose.
package table

import (
	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/storage/column"
	"github.com/obxdb/obx/value"
)

// RowGroup owns one column.Data per column, a row count, and a
// RowVersionManager tracking its own tombstones, per spec.md §4.6.
type RowGroup struct {
	RowStart uint64
	Capacity uint64

	Columns  []*column.Data
	Versions *RowVersionManager

	count uint64
}

// NewRowGroup allocates an empty row group starting at rowStart with the
// given per-column logical schema.
func NewRowGroup(rowStart uint64, capacity uint64, schema []value.LogicalType) *RowGroup {
	cols := make([]*column.Data, len(schema))
	for i, t := range schema {
		cols[i] = column.NewPrimitiveData(t)
	}
	return &RowGroup{
		RowStart: rowStart,
		Capacity: capacity,
		Columns:  cols,
		Versions: NewRowVersionManager(),
	}
}

// RestoreRowGroup reconstructs a row group from columns rebuilt by
// storage/checkpoint's load path (one column.Data per schema entry,
// already populated with loaded segments) plus the row count they share.
func RestoreRowGroup(rowStart, capacity uint64, columns []*column.Data, count uint64) *RowGroup {
	return &RowGroup{
		RowStart: rowStart,
		Capacity: capacity,
		Columns:  columns,
		Versions: NewRowVersionManager(),
		count:    count,
	}
}

// Count returns the number of rows appended to this group so far.
func (g *RowGroup) Count() uint64 { return g.count }

// Remaining returns how many more rows the group can accept.
func (g *RowGroup) Remaining() uint64 { return g.Capacity - g.count }

// Full reports whether the group has no remaining append capacity.
func (g *RowGroup) Full() bool { return g.count >= g.Capacity }

// AppendRows appends up to n rows (taken from chunk starting at
// chunkOffset) to every column in the group, returning how many rows
// were actually appended (bounded by remaining capacity).
func (g *RowGroup) AppendRows(chunk *value.Chunk, chunkOffset, n int) (int, error) {
	if n > int(g.Remaining()) {
		n = int(g.Remaining())
	}
	if len(chunk.Columns) != len(g.Columns) {
		return 0, obxerr.InvalidArgument("table: chunk column count %d does not match row group schema %d", len(chunk.Columns), len(g.Columns))
	}
	for i := 0; i < n; i++ {
		row := chunkOffset + i
		for c, col := range g.Columns {
			if err := col.AppendValue(chunk.Columns[c].Get(row)); err != nil {
				return i, err
			}
		}
	}
	g.count += uint64(n)
	return n, nil
}

// FetchRow reads one row's values for the given column indices at local
// offset (relative to RowStart).
func (g *RowGroup) FetchRow(offset uint64, columnIDs []int, out []value.Value) error {
	for i, c := range columnIDs {
		v, err := g.Columns[c].FetchRow(offset)
		if err != nil {
			return err
		}
		out[i] = v
	}
	return nil
}

// UpdateRow overwrites a fixed-width column's value at local offset.
// Variable-width columns must instead be updated via tombstone + append
// (spec.md §4.4/§4.6's stated policy — see DESIGN.md's Open Question
// decision).
func (g *RowGroup) UpdateRow(offset uint64, columnID int, v value.Value) error {
	return g.Columns[columnID].UpdateRow(offset, v)
}
