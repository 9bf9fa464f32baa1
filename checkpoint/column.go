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

package checkpoint

import (
	"github.com/obxdb/obx/storage/block"
	"github.com/obxdb/obx/storage/column"
)

// DataPointer locates one segment's persisted image: the row range it
// covers, where its compressed bytes live, and how they're encoded.
// Mirrors storage::data_pointer_t.
type DataPointer struct {
	RowStart     uint64
	TupleCount   uint64
	BlockPointer block.Pointer
	Compression  column.CompressionKind
	SegmentSize  uint64
}

// PersistentColumnData is one column's on-disk form: its segments'
// data pointers plus cumulative statistics, recursing into Children for
// List/Array element columns and Struct fields. Mirrors
// persistent_column_data_t, generalized to the nested column kinds
// spec.md §4.5 adds beyond the original's flat scalar columns.
type PersistentColumnData struct {
	DataPointers      []DataPointer
	Statistics        column.Statistics
	SegmentStatistics []column.Statistics // parallel to DataPointers

	FieldNames []string // parallel to Children, Struct only
	Children   []PersistentColumnData
}

// ColumnCheckpointState flushes one Primitive column's segments to disk
// through a shared PartialBlockManager, accumulating the resulting data
// pointers. Mirrors column_checkpoint_state_t, with the CONSTANT/RLE/
// DICTIONARY/UNCOMPRESSED selection itself delegated to
// column.Segment.CompressedImage rather than reimplemented here.
type ColumnCheckpointState struct {
	pbm          *PartialBlockManager
	dataPointers []DataPointer
}

// NewColumnCheckpointState creates a checkpoint state writing through pbm.
func NewColumnCheckpointState(pbm *PartialBlockManager) *ColumnCheckpointState {
	return &ColumnCheckpointState{pbm: pbm}
}

// FlushSegment selects seg's compression, packs the resulting image into
// a block via the partial block manager, records the segment as
// persisted, and appends the corresponding DataPointer. Mirrors
// column_checkpoint_state_t::flush_segment (the compression-selection
// branches themselves live in column.Segment.CompressedImage /
// column.SelectCompression).
func (c *ColumnCheckpointState) FlushSegment(seg *column.Segment, rowStart, tupleCount uint64) error {
	kind, payload, err := seg.CompressedImage()
	if err != nil {
		return err
	}

	alloc, err := c.pbm.GetBlockAllocation(uint64(len(payload)))
	if err != nil {
		return err
	}
	c.pbm.WriteToBlock(alloc.BlockID, alloc.Offset, payload)

	ptr := block.Pointer{BlockID: alloc.BlockID, Offset: alloc.Offset}
	size := uint64(len(payload))
	seg.MarkPersisted(ptr, kind, size)

	c.dataPointers = append(c.dataPointers, DataPointer{
		RowStart:     rowStart,
		TupleCount:   tupleCount,
		BlockPointer: ptr,
		Compression:  kind,
		SegmentSize:  size,
	})
	return nil
}

// PersistentData returns the accumulated data pointers and the column's
// cumulative statistics, mirroring
// column_checkpoint_state_t::get_persistent_data.
func (c *ColumnCheckpointState) PersistentData(stats column.Statistics) PersistentColumnData {
	return PersistentColumnData{DataPointers: c.dataPointers, Statistics: stats}
}

// CheckpointColumn flushes every segment of a Primitive column and
// returns its persistent form, recursing into List/Array/Struct columns'
// children. Mirrors column_data_checkpointer_t::checkpoint, generalized
// to the nested column kinds column.Data supports.
func CheckpointColumn(data *column.Data, pbm *PartialBlockManager) (PersistentColumnData, error) {
	switch data.Kind {
	case column.KindPrimitive:
		state := NewColumnCheckpointState(pbm)
		var segStats []column.Statistics
		for _, seg := range data.Segments() {
			if err := state.FlushSegment(seg, seg.RowStart, seg.TupleCount()); err != nil {
				return PersistentColumnData{}, err
			}
			segStats = append(segStats, seg.SegmentStatistics())
		}
		result := state.PersistentData(data.Statistics())
		result.SegmentStatistics = segStats
		return result, nil

	case column.KindList, column.KindArray:
		child, err := CheckpointColumn(data.Child(), pbm)
		if err != nil {
			return PersistentColumnData{}, err
		}
		return PersistentColumnData{Children: []PersistentColumnData{child}}, nil

	case column.KindStruct:
		var out PersistentColumnData
		for _, f := range data.Fields() {
			child, err := CheckpointColumn(f.Data, pbm)
			if err != nil {
				return PersistentColumnData{}, err
			}
			out.FieldNames = append(out.FieldNames, f.Name)
			out.Children = append(out.Children, child)
		}
		return out, nil

	default:
		return PersistentColumnData{}, nil
	}
}
