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
	"github.com/obxdb/obx/compr"
	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/storage/block"
	"github.com/obxdb/obx/storage/column"
	"github.com/obxdb/obx/storage/table"
	"github.com/obxdb/obx/value"
)

// RowGroupDescriptor is one row group's on-disk form: its row range plus
// one PersistentColumnData per schema column.
type RowGroupDescriptor struct {
	RowStart uint64
	Capacity uint64
	Count    uint64
	Columns  []PersistentColumnData
}

// TableDescriptor is a whole table's on-disk form, per spec.md §4.12's
// checkpoint step 5 ("update the file header to point at new catalog/
// table metadata roots"): the schema needed to reconstruct segments
// without external context, and every row group's persisted columns.
type TableDescriptor struct {
	Schema        []value.LogicalType
	GroupCapacity uint64
	Groups        []RowGroupDescriptor
}

// CheckpointTable flushes every row group/column of tbl to disk via mgr:
// segment compression selection and partial-block packing (storage/
// column, PartialBlockManager), followed by writing a TableDescriptor
// that lets LoadTable reconstruct the table later. Grounded on
// column_data_checkpointer_t::checkpoint, generalized from one column to
// a whole table's row groups (no table-level orchestrator survives in
// the retrieval pack; spec.md §4.12 names the step directly).
func CheckpointTable(tbl *table.DataTable, mgr block.Manager) (block.Pointer, error) {
	pbm := NewPartialBlockManager(mgr)

	desc := TableDescriptor{Schema: tbl.Schema(), GroupCapacity: tbl.GroupCapacity()}
	for _, g := range tbl.RowGroups() {
		gd := RowGroupDescriptor{RowStart: g.RowStart, Capacity: g.Capacity, Count: g.Count()}
		for _, col := range g.Columns {
			pcd, err := CheckpointColumn(col, pbm)
			if err != nil {
				return block.Pointer{}, err
			}
			gd.Columns = append(gd.Columns, pcd)
		}
		desc.Groups = append(desc.Groups, gd)
	}

	if err := pbm.FlushPartialBlocks(); err != nil {
		return block.Pointer{}, err
	}

	return writeDescriptor(mgr, &desc)
}

// writeDescriptor serializes desc, s2-compresses the result via
// compr.Compression("s2") (a table descriptor is schema-repetitive
// column metadata, the same kind of payload the teacher's blockfmt
// trailers compress with the same codec), and writes the framed
// `[ uncompressed-len uvarint ][ compressed-len uvarint ][ compressed
// bytes ]` payload into a single freshly allocated block. A descriptor
// that does not fit in one block after compression is unsupported for
// the same reason column.Segment.Checkpoint limits a segment image to
// one block: multi-block spanning is not yet wired.
func writeDescriptor(mgr block.Manager, desc *TableDescriptor) (block.Pointer, error) {
	payload := encodeTableDescriptor(desc)
	compressed := compr.Compression("s2").Compress(payload, nil)

	frame := putUvarint(nil, uint64(len(payload)))
	frame = putUvarint(frame, uint64(len(compressed)))
	frame = append(frame, compressed...)

	bs := mgr.BlockSize()
	if len(frame) > bs {
		return block.Pointer{}, obxerr.Unsupported("checkpoint: table descriptor larger than one block (multi-block descriptors not yet wired)")
	}
	id, err := mgr.FreeBlockID()
	if err != nil {
		return block.Pointer{}, err
	}
	out := make([]byte, bs)
	copy(out, frame)
	if err := mgr.Write(out, id); err != nil {
		return block.Pointer{}, err
	}
	return block.Pointer{BlockID: id, Offset: 0}, nil
}

// CheckpointAndPublish runs CheckpointTable and then rewrites mgr's file
// header so MetaBlockPointer points at the freshly written descriptor,
// per spec.md §4.12's final step.
func CheckpointAndPublish(tbl *table.DataTable, mgr block.Manager) error {
	ptr, err := CheckpointTable(tbl, mgr)
	if err != nil {
		return err
	}
	hdr, err := mgr.ReadHeader()
	if err != nil {
		return err
	}
	hdr.MetaBlockPointer = ptr
	return mgr.WriteHeader(hdr)
}

// LoadTable reconstructs a DataTable from the descriptor at ptr, loading
// every segment's compressed image back through column.LoadSegment.
// Mirrors the load side of column_data_checkpointer_t's round trip,
// generalized to a whole table.
func LoadTable(mgr block.Manager, ptr block.Pointer) (*table.DataTable, error) {
	desc, err := readDescriptor(mgr, ptr)
	if err != nil {
		return nil, err
	}

	groups := make([]*table.RowGroup, len(desc.Groups))
	for i, gd := range desc.Groups {
		cols := make([]*column.Data, len(gd.Columns))
		for c, pcd := range gd.Columns {
			data, err := loadColumn(mgr, desc.Schema[c], pcd)
			if err != nil {
				return nil, err
			}
			cols[c] = data
		}
		groups[i] = table.RestoreRowGroup(gd.RowStart, gd.Capacity, cols, gd.Count)
	}

	return table.RestoreDataTable(desc.Schema, desc.GroupCapacity, groups), nil
}

// loadColumn reconstructs one column's Data from its persisted form as a
// Primitive column (storage/table builds every row group column via
// column.NewPrimitiveData). pcd.Children is not read, so List/Array/Struct
// children written by CheckpointColumn are not reconstructed.
func loadColumn(mgr block.Manager, logical value.LogicalType, pcd PersistentColumnData) (*column.Data, error) {
	segments := make([]*column.Segment, len(pcd.DataPointers))
	for i, dp := range pcd.DataPointers {
		var stats column.Statistics
		if i < len(pcd.SegmentStatistics) {
			stats = pcd.SegmentStatistics[i]
		}
		seg, err := column.LoadSegment(mgr, logical, dp.RowStart, dp.TupleCount, dp.BlockPointer, dp.Compression, dp.SegmentSize, stats)
		if err != nil {
			return nil, err
		}
		segments[i] = seg
	}
	return column.RestorePrimitiveData(logical, segments), nil
}

func encodeTableDescriptor(desc *TableDescriptor) []byte {
	var buf []byte
	buf = putUvarint(buf, uint64(len(desc.Schema)))
	for _, t := range desc.Schema {
		buf = append(buf, byte(t))
	}
	buf = putUvarint(buf, desc.GroupCapacity)
	buf = putUvarint(buf, uint64(len(desc.Groups)))
	for _, gd := range desc.Groups {
		buf = putUvarint(buf, gd.RowStart)
		buf = putUvarint(buf, gd.Capacity)
		buf = putUvarint(buf, gd.Count)
		buf = putUvarint(buf, uint64(len(gd.Columns)))
		for _, pcd := range gd.Columns {
			buf = encodePersistentColumnData(buf, pcd)
		}
	}
	return buf
}

func readDescriptor(mgr block.Manager, ptr block.Pointer) (*TableDescriptor, error) {
	raw := make([]byte, mgr.BlockSize())
	if err := mgr.Read(ptr.BlockID, raw); err != nil {
		return nil, err
	}
	framed := &byteReader{b: raw[ptr.Offset:]}
	uncompressedLen, err := framed.uvarint()
	if err != nil {
		return nil, err
	}
	compressedLen, err := framed.uvarint()
	if err != nil {
		return nil, err
	}
	compressed, err := framed.bytes(compressedLen)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, uncompressedLen)
	if err := compr.Decompression("s2").Decompress(compressed, payload); err != nil {
		return nil, obxerr.Corrupted("checkpoint: decompressing table descriptor: %v", err)
	}
	r := &byteReader{b: payload}

	numCols, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	desc := &TableDescriptor{Schema: make([]value.LogicalType, numCols)}
	for i := range desc.Schema {
		b, err := r.readByte()
		if err != nil {
			return nil, err
		}
		desc.Schema[i] = value.LogicalType(b)
	}
	if desc.GroupCapacity, err = r.uvarint(); err != nil {
		return nil, err
	}
	numGroups, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	desc.Groups = make([]RowGroupDescriptor, numGroups)
	for i := range desc.Groups {
		gd := &desc.Groups[i]
		if gd.RowStart, err = r.uvarint(); err != nil {
			return nil, err
		}
		if gd.Capacity, err = r.uvarint(); err != nil {
			return nil, err
		}
		if gd.Count, err = r.uvarint(); err != nil {
			return nil, err
		}
		numColumns, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		gd.Columns = make([]PersistentColumnData, numColumns)
		for j := range gd.Columns {
			if gd.Columns[j], err = decodePersistentColumnData(r); err != nil {
				return nil, err
			}
		}
	}
	return desc, nil
}
