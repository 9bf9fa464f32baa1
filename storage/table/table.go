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

package table

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/value"
)

// DefaultRowGroupCapacity is the fixed row group size spec.md §4.6 names
// as the default (1024 rows).
const DefaultRowGroupCapacity = 1024

// creationEntry records one committed append: the global row range
// [RowStart, RowStart+Count) created by transaction CommitID. DataTable
// consults this log (together with each row group's RowVersionManager)
// to implement spec.md §4.6's visibility rule. Grounded on
// transaction.cpp's append_info (row_start, count), extended with the
// owning commit ID once the transaction commits.
type creationEntry struct {
	RowStart uint64
	Count    uint64
	CommitID uint64
}

// AppendState is positioned by AppendLock and threaded through
// InitializeAppend/Append/FinalizeAppend, per spec.md §4.6.
type AppendState struct {
	RowStart uint64
	count    uint64
	group    *RowGroup
}

// ParallelScanState snapshots the row-group list at creation time so that
// concurrent appends never racily appear in an in-progress parallel scan
// (spec.md §4.6).
type ParallelScanState struct {
	groups []*RowGroup
	next   int32
}

// DataTable is the table-level owner of a tree of row groups, a coarse
// append lock, and the creation log backing MVCC visibility. Grounded on
// spec.md §4.6's data_table_t description (transaction.cpp/hpp and
// transaction_manager.cpp/hpp have no row_group/data_table analog in the
// retrieval pack, so the struct shape follows the prose directly).
type DataTable struct {
	schema        []value.LogicalType
	groupCapacity uint64

	appendMu sync.Mutex // coarse append_lock: serializes writers only

	mu        sync.Mutex // protects groups/rowCount/creations below
	groups    []*RowGroup
	rowCount  uint64
	creations []creationEntry
}

// NewDataTable creates an empty table over schema, grouping rows into row
// groups of groupCapacity (DefaultRowGroupCapacity if zero).
func NewDataTable(schema []value.LogicalType, groupCapacity uint64) *DataTable {
	if groupCapacity == 0 {
		groupCapacity = DefaultRowGroupCapacity
	}
	return &DataTable{schema: schema, groupCapacity: groupCapacity}
}

// AppendLock acquires the table's write lock and positions
// state.RowStart at the current tail, per spec.md §4.6.
func (t *DataTable) AppendLock(state *AppendState) {
	t.appendMu.Lock()
	t.mu.Lock()
	state.RowStart = t.rowCount
	state.count = 0
	state.group = nil
	t.mu.Unlock()
}

// AppendUnlock releases the write lock acquired by AppendLock. Callers
// must call this exactly once after FinalizeAppend (or after abandoning
// an append without committing).
func (t *DataTable) AppendUnlock() { t.appendMu.Unlock() }

// InitializeAppend ensures state has a row group with room for at least
// one more row, allocating a new row group if the current tail group is
// full or does not yet exist.
func (t *DataTable) InitializeAppend(state *AppendState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.groups) == 0 || t.groups[len(t.groups)-1].Full() {
		g := NewRowGroup(t.tailRowStartLocked(), t.groupCapacity, t.schema)
		t.groups = append(t.groups, g)
	}
	state.group = t.groups[len(t.groups)-1]
	return nil
}

func (t *DataTable) tailRowStartLocked() uint64 {
	if len(t.groups) == 0 {
		return 0
	}
	last := t.groups[len(t.groups)-1]
	return last.RowStart + last.Capacity
}

// Append appends chunk's rows to the table, spilling across row group
// boundaries (allocating new groups as needed) and advancing
// state.RowStart bookkeeping.
func (t *DataTable) Append(chunk *value.Chunk, state *AppendState) error {
	remaining := chunk.Cardinality()
	offset := 0
	for remaining > 0 {
		if state.group == nil || state.group.Full() {
			if err := t.InitializeAppend(state); err != nil {
				return err
			}
		}
		n, err := state.group.AppendRows(chunk, offset, remaining)
		if err != nil {
			return err
		}
		offset += n
		remaining -= n
		state.count += uint64(n)

		t.mu.Lock()
		t.rowCount += uint64(n)
		t.mu.Unlock()
	}
	return nil
}

// FinalizeAppend records the append as a committed creation range, making
// its rows visible to readers whose start time is >= commitID. Per
// spec.md §4.6, this is also where an operator would notify the WAL; the
// WAL write itself is driven by the caller (see wal.Writer), not by
// DataTable.
func (t *DataTable) FinalizeAppend(state *AppendState, commitID uint64) {
	if state.count == 0 {
		return
	}
	t.mu.Lock()
	t.creations = append(t.creations, creationEntry{RowStart: state.RowStart, Count: state.count, CommitID: commitID})
	t.mu.Unlock()
}

// RowCount returns the number of rows ever allocated (including
// not-yet-committed and tombstoned rows).
func (t *DataTable) RowCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.rowCount
}

// groupFor returns the row group owning global row id and its local
// offset within that group.
func (t *DataTable) groupFor(rowID uint64) (*RowGroup, uint64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, g := range t.groups {
		if rowID >= g.RowStart && rowID < g.RowStart+g.Capacity {
			return g, rowID - g.RowStart, true
		}
	}
	return nil, 0, false
}

// Visible implements spec.md §4.6's visibility rule: row rowID is visible
// to a reader with start time readStartTime iff its creating transaction
// committed with commit ID <= readStartTime, and either it is not
// tombstoned or its tombstoning transaction committed with commit ID >
// readStartTime.
func (t *DataTable) Visible(rowID uint64, readStartTime uint64) bool {
	t.mu.Lock()
	commitID, created := uint64(0), false
	for _, c := range t.creations {
		if rowID >= c.RowStart && rowID < c.RowStart+c.Count {
			commitID, created = c.CommitID, true
			break
		}
	}
	t.mu.Unlock()
	if !created || commitID > readStartTime {
		return false
	}
	g, offset, ok := t.groupFor(rowID)
	if !ok {
		return false
	}
	if delID, tombstoned := g.Versions.DeletedAt(offset); tombstoned && delID <= readStartTime {
		return false
	}
	return true
}

// Fetch performs a random fetch by row ID vector into result, skipping
// rows not visible at readStartTime (result gets one row per visible
// input row ID, in order; spec.md's exact short-row-on-invisible
// semantics are left to the caller/operator layer which knows how to pad
// or filter — see operator for a policy built on top of this).
func (t *DataTable) Fetch(columnIDs []int, rowIDs []uint64, readStartTime uint64) ([][]value.Value, error) {
	out := make([][]value.Value, 0, len(rowIDs))
	for _, id := range rowIDs {
		if !t.Visible(id, readStartTime) {
			continue
		}
		g, offset, ok := t.groupFor(id)
		if !ok {
			return nil, obxerr.NotFound("table: row %d not found", id)
		}
		row := make([]value.Value, len(columnIDs))
		if err := g.FetchRow(offset, columnIDs, row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, nil
}

// CreateParallelScanState snapshots the current row-group list so
// concurrent appends cannot race with an in-progress parallel scan.
func (t *DataTable) CreateParallelScanState() *ParallelScanState {
	t.mu.Lock()
	defer t.mu.Unlock()
	groups := make([]*RowGroup, len(t.groups))
	copy(groups, t.groups)
	return &ParallelScanState{groups: groups}
}

// NextParallelChunk atomically claims the next row group and scans all
// of its visible rows (at readStartTime) for columnIDs into a fresh
// chunk. It returns (nil, false) once every row group has been claimed,
// per spec.md §8 testable property 7 (N groups => N non-empty chunks,
// then exhausted).
func (t *DataTable) NextParallelChunk(state *ParallelScanState, columnIDs []int, readStartTime uint64) (*value.Chunk, bool, error) {
	idx := atomic.AddInt32(&state.next, 1) - 1
	if int(idx) >= len(state.groups) {
		return nil, false, nil
	}
	g := state.groups[idx]
	vectors := make([]*value.Vector, len(columnIDs))
	for i, c := range columnIDs {
		vectors[i] = value.NewVector(t.schema[c], int(g.Count()))
	}
	for local := uint64(0); local < g.Count(); local++ {
		if !t.Visible(g.RowStart+local, readStartTime) {
			continue
		}
		for i, c := range columnIDs {
			v, err := g.Columns[c].FetchRow(local)
			if err != nil {
				return nil, false, err
			}
			vectors[i].Append(v)
		}
	}
	chunk, err := value.NewChunk(vectors)
	if err != nil {
		return nil, false, err
	}
	return chunk, true, nil
}

// Update overwrites fixed-width column values for the given row IDs;
// variable-width columns must instead be deleted and re-appended (the
// append-plus-tombstone policy documented in SPEC_FULL.md's Open
// Question decisions).
func (t *DataTable) Update(columnID int, rowIDs []uint64, values []value.Value) error {
	if len(rowIDs) != len(values) {
		return obxerr.InvalidArgument("table: update row/value count mismatch")
	}
	for i, id := range rowIDs {
		g, offset, ok := t.groupFor(id)
		if !ok {
			return obxerr.NotFound("table: row %d not found", id)
		}
		if err := g.UpdateRow(offset, columnID, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// DeleteRows tombstones rowIDs with commitID via each owning row group's
// RowVersionManager.
func (t *DataTable) DeleteRows(rowIDs []uint64, commitID uint64) error {
	for _, id := range rowIDs {
		g, offset, ok := t.groupFor(id)
		if !ok {
			return obxerr.NotFound("table: row %d not found", id)
		}
		if err := g.Versions.Tombstone(offset, commitID); err != nil {
			return err
		}
	}
	return nil
}

// Vacuum forwards to every row group's RowVersionManager.Vacuum, dropping
// tombstone bookkeeping no active reader can still need, per
// lowWatermark = txn.Manager.LowestActiveStartTime().
func (t *DataTable) Vacuum(lowWatermark uint64) int {
	t.mu.Lock()
	groups := make([]*RowGroup, len(t.groups))
	copy(groups, t.groups)
	t.mu.Unlock()
	n := 0
	for _, g := range groups {
		n += g.Versions.Vacuum(lowWatermark)
	}
	return n
}

// Schema returns the table's column types, for checkpoint/load's
// descriptor bookkeeping.
func (t *DataTable) Schema() []value.LogicalType { return t.schema }

// GroupCapacity returns the fixed per-row-group row capacity the table
// was created with.
func (t *DataTable) GroupCapacity() uint64 { return t.groupCapacity }

// RowGroups returns a snapshot of the table's row groups, used by the
// checkpoint pipeline to flush each group's columns in turn.
func (t *DataTable) RowGroups() []*RowGroup {
	t.mu.Lock()
	defer t.mu.Unlock()
	groups := make([]*RowGroup, len(t.groups))
	copy(groups, t.groups)
	sort.Slice(groups, func(i, j int) bool { return groups[i].RowStart < groups[j].RowStart })
	return groups
}

// RestoreDataTable rebuilds a DataTable from row groups reconstructed by
// storage/checkpoint's load path. Every restored row is marked visible as
// of commit 0: the checkpoint pipeline only ever persists committed,
// vacuumed data (spec.md §4.12 runs after a Vacuum), so there is no MVCC
// history left to reconstruct, only a flat set of live rows.
func RestoreDataTable(schema []value.LogicalType, groupCapacity uint64, groups []*RowGroup) *DataTable {
	t := &DataTable{schema: schema, groupCapacity: groupCapacity, groups: groups}
	for _, g := range groups {
		if g.RowStart+g.Count() > t.rowCount {
			t.rowCount = g.RowStart + g.Count()
		}
		if g.Count() > 0 {
			t.creations = append(t.creations, creationEntry{RowStart: g.RowStart, Count: g.Count(), CommitID: 0})
		}
	}
	return t
}
