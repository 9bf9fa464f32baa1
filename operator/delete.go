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

// Remove is the write operator (operator_type.remove) tombstoning the
// row IDs its child produces. Its child's chunks carry exactly one
// column, the row ID (Uint64/Int64), matching PHYSICAL_DELETE's
// row_ids[] wal record shape. When indexColumns/indexed are non-nil the
// rows' indexed column values are fetched before tombstoning and their
// index entries retracted.
type Remove struct {
	*Base
	child        Node
	table        *table.DataTable
	engine       *index.Engine
	indexColumns []string
	indexedCols  []int
	commitID     uint64
}

// NewRemove builds a delete operator tombstoning rows from child with
// commitID, retracting index entries for indexedCols/indexColumns (both
// nil if the table has no indexes to retract from).
func NewRemove(child Node, t *table.DataTable, engine *index.Engine, indexedCols []int, indexColumns []string, commitID uint64) *Remove {
	return &Remove{
		Base:         NewBase(TypeRemove),
		child:        child,
		table:        t,
		engine:       engine,
		indexColumns: indexColumns,
		indexedCols:  indexedCols,
		commitID:     commitID,
	}
}

func (r *Remove) Next() (*value.Chunk, bool, error) {
	r.Prepare()
	chunk, ok, err := r.child.Next()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		r.MarkExecuted()
		return nil, false, nil
	}
	if chunk.Cardinality() == 0 || len(chunk.Columns) < 1 {
		return chunk, true, nil
	}

	rowIDs := make([]uint64, chunk.Cardinality())
	for i := 0; i < chunk.Cardinality(); i++ {
		rowIDs[i] = uint64(chunk.Columns[0].Get(i).Int64())
	}

	var retracted [][]value.Value
	if r.engine != nil && len(r.indexedCols) > 0 {
		retracted, _ = r.table.Fetch(r.indexedCols, rowIDs, ^uint64(0))
	}

	if err := r.table.DeleteRows(rowIDs, r.commitID); err != nil {
		return nil, false, err
	}

	if r.engine != nil && len(retracted) == len(rowIDs) {
		for i, id := range rowIDs {
			if err := r.engine.DeleteRow(r.indexColumns, retracted[i], int64(id)); err != nil {
				return nil, false, err
			}
		}
	}
	return chunk, true, nil
}
