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

// Insert is a write operator (operator_type.insert) appending its
// child's output chunks to a table and fanning each inserted row out to
// every index registered over the table's columns. It emits each chunk
// it wrote back to its caller unchanged, mirroring operator_t's
// modified_/no_modified_ split (the write operator's output IS the rows
// it modified) without carrying the unused no_modified_ half forward,
// since this engine has no statement that cares which rows an insert
// left untouched.
type Insert struct {
	*Base
	child    Node
	table    *table.DataTable
	engine   *index.Engine
	columns  []string
	commitID uint64
}

// NewInsert builds an insert operator over child, appending to t and
// updating engine's indexes (engine may be nil if the table has no
// indexes). columns names each column in the chunks child produces, in
// order, for index fan-out; commitID is the already-assigned commit ID
// rows written by this operator become visible under.
func NewInsert(child Node, t *table.DataTable, engine *index.Engine, columns []string, commitID uint64) *Insert {
	return &Insert{
		Base:     NewBase(TypeInsert),
		child:    child,
		table:    t,
		engine:   engine,
		columns:  columns,
		commitID: commitID,
	}
}

func (in *Insert) Next() (*value.Chunk, bool, error) {
	in.Prepare()
	chunk, ok, err := in.child.Next()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		in.MarkExecuted()
		return nil, false, nil
	}

	var state table.AppendState
	in.table.AppendLock(&state)
	defer in.table.AppendUnlock()

	if err := in.table.Append(chunk, &state); err != nil {
		return nil, false, err
	}
	in.table.FinalizeAppend(&state, in.commitID)

	if in.engine != nil {
		rowStart := int64(state.RowStart)
		for i := 0; i < chunk.Cardinality(); i++ {
			row := chunk.Row(i)
			if err := in.engine.InsertRow(in.columns, row, rowStart+int64(i)); err != nil {
				return nil, false, err
			}
		}
	}
	return chunk, true, nil
}
