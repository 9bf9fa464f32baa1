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
	"github.com/obxdb/obx/index"
	"github.com/obxdb/obx/storage/table"
	"github.com/obxdb/obx/value"
)

// Update is the write operator (operator_type.update) behind
// spec.md §4.6's update_row path: only fixed-width columns may be
// updated in place; variable-width columns must go through Remove
// followed by Insert (SPEC_FULL.md's Open Question decision). It pulls
// (rowID, newValue) pairs from its child one chunk at a time — the
// child's chunk is expected to carry exactly two columns, the row ID
// (as Uint64/Int64) and the new value, matching PHYSICAL_UPDATE's
// (row_ids[], chunk) wal record shape.
type Update struct {
	*Base
	child    Node
	table    *table.DataTable
	engine   *index.Engine
	columnID int
	// indexColumns lets the operator retract a row's previous index
	// entries before inserting its new one; it is nil when the updated
	// column is not indexed.
	indexColumns []string
}

// NewUpdate builds an update operator writing columnID, retracting and
// re-inserting index entries for indexColumns (nil if columnID is not
// indexed).
func NewUpdate(child Node, t *table.DataTable, engine *index.Engine, columnID int, indexColumns []string) *Update {
	return &Update{
		Base:         NewBase(TypeUpdate),
		child:        child,
		table:        t,
		engine:       engine,
		columnID:     columnID,
		indexColumns: indexColumns,
	}
}

func (u *Update) Next() (*value.Chunk, bool, error) {
	u.Prepare()
	chunk, ok, err := u.child.Next()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		u.MarkExecuted()
		return nil, false, nil
	}
	if chunk.Cardinality() == 0 || len(chunk.Columns) < 2 {
		return chunk, true, nil
	}

	rowIDCol, valueCol := chunk.Columns[0], chunk.Columns[1]
	rowIDs := make([]uint64, chunk.Cardinality())

	var oldValues []value.Value
	if u.engine != nil && len(u.indexColumns) > 0 {
		oldValues = make([]value.Value, chunk.Cardinality())
		ids := make([]uint64, chunk.Cardinality())
		for i := 0; i < chunk.Cardinality(); i++ {
			ids[i] = uint64(rowIDCol.Get(i).Int64())
		}
		// ^uint64(0): read at "now", not at a reader's snapshot time, since
		// this is retracting the engine's own current index entry.
		rows, err := u.table.Fetch([]int{u.columnID}, ids, ^uint64(0))
		if err == nil && len(rows) == len(ids) {
			for i, row := range rows {
				oldValues[i] = row[0]
			}
		}
	}

	for i := 0; i < chunk.Cardinality(); i++ {
		rowIDs[i] = uint64(rowIDCol.Get(i).Int64())
	}
	newValues := make([]value.Value, chunk.Cardinality())
	for i := 0; i < chunk.Cardinality(); i++ {
		newValues[i] = valueCol.Get(i)
	}

	if err := u.table.Update(u.columnID, rowIDs, newValues); err != nil {
		return nil, false, err
	}

	if u.engine != nil && len(u.indexColumns) > 0 {
		for i, id := range rowIDs {
			if oldValues != nil && !oldValues[i].IsNull() {
				if err := u.engine.DeleteRow(u.indexColumns, []value.Value{oldValues[i]}, int64(id)); err != nil {
					return nil, false, err
				}
			}
			if err := u.engine.InsertRow(u.indexColumns, []value.Value{newValues[i]}, int64(id)); err != nil {
				return nil, false, err
			}
		}
	}
	return chunk, true, nil
}
