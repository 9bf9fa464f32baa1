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

// Package column implements spec.md §4.4-4.6: fixed-capacity column
// segments, the statistics/zonemap pruning they carry, and the
// Primitive/Validity/List/Array/Struct column-data tagged union that sits
// on top of them. Grounded on
// _examples/original_source/components/table/persistent_column_data.cpp,
// column_segment (array_column_data.cpp/list_column_data.cpp), and
// column_checkpoint_state.cpp for the compression/statistics flow; the
// in-memory hot path follows the teacher's vector-oriented ion/blockfmt
// reader style.
package column

import (
	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/storage/block"
	"github.com/obxdb/obx/value"
)

// Segment is a fixed-capacity run of one column's values, per spec.md
// §4.4. While "hot" (belonging to the table's in-progress row group) it
// holds its values as an in-memory value.Vector. A segment rebuilt by
// LoadSegment from a checkpointed image is decoded in full at load time,
// so it too holds its values in a value.Vector.
type Segment struct {
	Logical  value.LogicalType
	Physical value.PhysicalType
	RowStart uint64
	Capacity uint64

	stats Statistics
	vec   *value.Vector // non-nil once resident (hot, or loaded from disk)

	// set once Checkpoint has run; lets a second Checkpoint call be a
	// no-op if the segment was never touched again.
	persisted   bool
	persistedAt block.Pointer
	compression CompressionKind
	segmentSize uint64
}

// NewSegment allocates an empty hot segment with room for capacity rows.
func NewSegment(logical value.LogicalType, rowStart uint64, capacity uint64) *Segment {
	return &Segment{
		Logical:  logical,
		Physical: logical.Physical(),
		RowStart: rowStart,
		Capacity: capacity,
		vec:      value.NewVector(logical, int(capacity)),
	}
}

// Full reports whether the segment has no remaining append capacity.
func (s *Segment) Full() bool { return s.vec != nil && uint64(s.vec.Len()) >= s.Capacity }

// TupleCount returns the number of rows currently stored.
func (s *Segment) TupleCount() uint64 {
	if s.vec == nil {
		return 0
	}
	return uint64(s.vec.Len())
}

// Append adds count values from src (starting at srcOffset) to the
// segment, updating cumulative statistics as it goes. It fails if the
// segment lacks capacity for count more rows.
func (s *Segment) Append(src *value.Vector, srcOffset, count int) error {
	if s.vec == nil {
		return obxerr.Fatalf("column.Segment.Append", "segment has no resident vector")
	}
	if uint64(s.vec.Len()+count) > s.Capacity {
		return obxerr.InvalidArgument("column: segment append exceeds capacity")
	}
	for i := 0; i < count; i++ {
		v := src.Get(srcOffset + i)
		s.vec.Append(v)
		s.stats.Update(v)
	}
	s.persisted = false
	return nil
}

// Scan copies count values starting at local row offset into dst.
func (s *Segment) Scan(dst *value.Vector, offset, count int) error {
	if err := s.ensureResident(); err != nil {
		return err
	}
	if offset+count > s.vec.Len() {
		return obxerr.InvalidArgument("column: scan range exceeds segment tuple count")
	}
	for i := 0; i < count; i++ {
		dst.Append(s.vec.Get(offset + i))
	}
	return nil
}

// FetchRow returns the value at local row offset.
func (s *Segment) FetchRow(offset int) (value.Value, error) {
	if err := s.ensureResident(); err != nil {
		return value.Value{}, err
	}
	if offset < 0 || offset >= s.vec.Len() {
		return value.Value{}, obxerr.InvalidArgument("column: fetch_row offset out of range")
	}
	return s.vec.Get(offset), nil
}

// UpdateRow overwrites the value at local row offset in place. Per
// spec.md §4.4, variable-width columns (PhysVarlen) do not support
// in-place update; callers must instead append a new version and
// tombstone the old row (storage/table's row-version manager).
func (s *Segment) UpdateRow(offset int, v value.Value) error {
	if !s.Physical.FixedWidth() {
		return obxerr.Unsupported("column: update_row on variable-width segment")
	}
	if err := s.ensureResident(); err != nil {
		return err
	}
	if offset < 0 || offset >= s.vec.Len() {
		return obxerr.InvalidArgument("column: update_row offset out of range")
	}
	s.vec.Set(offset, v)
	s.persisted = false
	return nil
}

// SegmentStatistics returns the segment's current zonemap.
func (s *Segment) SegmentStatistics() Statistics { return s.stats }

func (s *Segment) ensureResident() error {
	if s.vec != nil {
		return nil
	}
	return obxerr.Fatalf("column.Segment.ensureResident", "segment not loaded and has no backing store")
}

// CompressedImage selects a compression scheme for the segment's current
// values and returns the encoded validity-bitmap-plus-payload image
// without touching any block, along with the chosen compression kind.
// Grounded on column_checkpoint_state.cpp's flush_segment, which performs
// the same try-CONSTANT/RLE/DICTIONARY/fallback-UNCOMPRESSED selection
// (SelectCompression adds a ZSTD tier in DICTIONARY's place once a
// segment's distinct-value count makes a dictionary impractical) before
// handing the result to its partial_block_manager; splitting the
// selection step out of the block write lets the checkpoint package pack
// the image into a partial_block_manager_t-style shared block instead of
// always allocating one block per segment.
func (s *Segment) CompressedImage() (CompressionKind, []byte, error) {
	if err := s.ensureResident(); err != nil {
		return 0, nil, err
	}
	rs := encodeRows(s.vec, s.Logical, s.Physical)
	kind, compressed := SelectCompression(rs)
	bitmap := validityBitmap(s.vec)
	return kind, append(bitmap, compressed...), nil
}

// MarkPersisted records the outcome of writing the segment's compressed
// image to disk, so a later Checkpoint call that finds nothing changed
// returns that outcome without writing again.
func (s *Segment) MarkPersisted(ptr block.Pointer, kind CompressionKind, size uint64) {
	s.persisted = true
	s.persistedAt = ptr
	s.compression = kind
	s.segmentSize = size
}

// Checkpoint selects a compression scheme for the segment's current
// values, writes the compressed image into a freshly allocated, dedicated
// block, and returns the block pointer, chosen compression, and encoded
// size — the three pieces of a data_pointer_t (spec.md §4.12). This is
// the one-block-per-segment path; storage/checkpoint's table-level
// pipeline instead packs segments into shared partial blocks via
// CompressedImage/MarkPersisted and a partial_block_manager_t-style
// allocator, per column_checkpoint_state.cpp.
func (s *Segment) Checkpoint(pool *block.Pool, mgr block.Manager) (block.Pointer, CompressionKind, uint64, error) {
	if s.persisted {
		return s.persistedAt, s.compression, s.segmentSize, nil
	}
	kind, payload, err := s.CompressedImage()
	if err != nil {
		return block.Pointer{}, 0, 0, err
	}

	id, err := mgr.FreeBlockID()
	if err != nil {
		return block.Pointer{}, 0, 0, err
	}
	bs := mgr.BlockSize()
	if len(payload) > bs {
		return block.Pointer{}, 0, 0, obxerr.Unsupported("column: segment image larger than one block (multi-block segments not yet wired)")
	}
	buf := make([]byte, bs)
	copy(buf, payload)
	if err := mgr.Write(buf, id); err != nil {
		return block.Pointer{}, 0, 0, err
	}

	ptr := block.Pointer{BlockID: id, Offset: 0}
	s.MarkPersisted(ptr, kind, uint64(len(payload)))
	return ptr, kind, s.segmentSize, nil
}

// validityBitmap packs vec's per-row validity into a ceil(n/8)-byte
// bitmap, 1 bit per row, MSB first within each byte.
func validityBitmap(vec *value.Vector) []byte {
	n := vec.Len()
	out := make([]byte, (n+7)/8)
	for i := 0; i < n; i++ {
		if vec.IsValid(i) {
			out[i/8] |= 1 << (7 - uint(i%8))
		}
	}
	return out
}

func bitmapGet(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<(7-uint(i%8))) != 0
}

// LoadSegment reconstructs a Segment from a previously checkpointed
// image: a block pointer, the compression kind and encoded size recorded
// in its data pointer, and the tuple count/statistics carried alongside
// it in the table descriptor.
func LoadSegment(mgr block.Manager, logical value.LogicalType, rowStart, tupleCount uint64, ptr block.Pointer, kind CompressionKind, size uint64, stats Statistics) (*Segment, error) {
	buf := make([]byte, mgr.BlockSize())
	if err := mgr.Read(ptr.BlockID, buf); err != nil {
		return nil, err
	}
	raw := buf[ptr.Offset:]
	if uint64(len(raw)) > size {
		raw = raw[:size]
	}
	bitmapLen := (int(tupleCount) + 7) / 8
	if len(raw) < bitmapLen {
		return nil, obxerr.Corrupted("column: truncated segment validity bitmap")
	}
	bitmap := raw[:bitmapLen]
	rs, err := DecodeRows(kind, raw[bitmapLen:], int(tupleCount))
	if err != nil {
		return nil, err
	}
	physical := logical.Physical()
	vec := value.NewVector(logical, int(tupleCount))
	for i, r := range rs {
		if !bitmapGet(bitmap, i) {
			vec.Append(value.NewNull(logical))
			continue
		}
		if physical == value.PhysVarlen {
			if logical == value.Blob {
				vec.Append(value.NewBlob(append([]byte(nil), r...)))
			} else {
				vec.Append(value.NewString(string(r)))
			}
			continue
		}
		vec.Append(decodeRow(r, logical, physical))
	}
	return &Segment{
		Logical:     logical,
		Physical:    physical,
		RowStart:    rowStart,
		Capacity:    tupleCount,
		stats:       stats,
		vec:         vec,
		persisted:   true,
		persistedAt: ptr,
		compression: kind,
		segmentSize: size,
	}, nil
}
