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

// Scan is a leaf operator reading row groups from a DataTable in
// parallel-scan order, one row-group chunk at a time, honoring MVCC
// visibility at a fixed read timestamp. Grounded on operator_type's
// full_scan, driven by DataTable.CreateParallelScanState/
// NextParallelChunk (storage/table/table.go), which already implements
// spec.md §8 testable property 7's group-by-group exhaustion.
type Scan struct {
	*Base
	table         *table.DataTable
	columnIDs     []int
	readStartTime uint64
	state         *table.ParallelScanState
}

// NewScan builds a full-table scan of columnIDs at readStartTime.
func NewScan(t *table.DataTable, columnIDs []int, readStartTime uint64) *Scan {
	return &Scan{
		Base:          NewBase(TypeFullScan),
		table:         t,
		columnIDs:     columnIDs,
		readStartTime: readStartTime,
	}
}

func (s *Scan) Next() (*value.Chunk, bool, error) {
	s.Prepare()
	if s.state == nil {
		s.state = s.table.CreateParallelScanState()
	}
	chunk, ok, err := s.table.NextParallelChunk(s.state, s.columnIDs, s.readStartTime)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		s.MarkExecuted()
		return nil, false, nil
	}
	return chunk, true, nil
}

// IndexScan is a leaf operator that answers a single compare-op
// predicate directly from an index, then fetches the matching rows from
// the owning table — the index_scan counterpart to operator_type's
// index_scan, replacing a full_scan's group-by-group sweep with a
// point/range lookup (index.Index.Find) whenever the query planner finds
// an index over the predicate column. Emits at most one chunk: index
// row-ID sets are typically far smaller than a row group and spec.md
// does not ask for paginated index-scan output.
type IndexScan struct {
	*Base
	table         *table.DataTable
	idx           index.Index
	op            index.CompareOp
	key           value.Value
	columnIDs     []int
	readStartTime uint64
	done          bool
}

// NewIndexScan builds an index-backed scan answering op against key over
// idx, fetching columnIDs for every visible matching row at
// readStartTime.
func NewIndexScan(t *table.DataTable, idx index.Index, op index.CompareOp, key value.Value, columnIDs []int, readStartTime uint64) *IndexScan {
	return &IndexScan{
		Base:          NewBase(TypeIndexScan),
		table:         t,
		idx:           idx,
		op:            op,
		key:           key,
		columnIDs:     columnIDs,
		readStartTime: readStartTime,
	}
}

func (s *IndexScan) Next() (*value.Chunk, bool, error) {
	s.Prepare()
	if s.done {
		return nil, false, nil
	}
	s.done = true
	s.MarkExecuted()

	rowIDs := s.idx.Find(s.op, s.key)
	if len(rowIDs) == 0 {
		return nil, false, nil
	}
	uids := make([]uint64, len(rowIDs))
	for i, id := range rowIDs {
		uids[i] = uint64(id)
	}
	rows, err := s.table.Fetch(s.columnIDs, uids, s.readStartTime)
	if err != nil {
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	vectors := make([]*value.Vector, len(s.columnIDs))
	for ci := range s.columnIDs {
		vectors[ci] = value.NewVector(rows[0][ci].Type, len(rows))
	}
	for _, row := range rows {
		for ci := range s.columnIDs {
			vectors[ci].Append(row[ci])
		}
	}
	chunk, err := value.NewChunk(vectors)
	if err != nil {
		return nil, false, err
	}
	return chunk, true, nil
}
