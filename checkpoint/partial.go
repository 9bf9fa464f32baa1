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

// Package checkpoint implements spec.md §4.12: flushing a table's
// in-memory row groups to disk as compressed, block-packed column data,
// and the reverse load path that reconstructs segments from a
// previously-written table descriptor. Grounded on
// _examples/original_source/components/table/storage/partial_block_manager.hpp/.cpp,
// column_checkpoint_state.hpp/.cpp, and column_data_checkpointer.hpp/.cpp;
// the per-segment compression selection these describe already lives in
// storage/column (Segment.CompressedImage/SelectCompression), so this
// package owns only the block-packing and table/column orchestration
// layered on top of it.
package checkpoint

import "github.com/obxdb/obx/storage/block"

// Allocation is where a segment's compressed image should be written: a
// block id, a byte offset within that block, and the image size. Mirrors
// partial_block_allocation_t.
type Allocation struct {
	BlockID uint64
	Offset  uint32
	Size    uint64
}

// partialBlock tracks how much of an already-allocated block has been
// claimed by prior segments packed into it.
type partialBlock struct {
	blockID  uint64
	used     uint32
	capacity uint64
}

// PartialBlockManager packs small segment images into shared blocks
// instead of giving every segment its own dedicated block, per
// partial_block_manager_t. A segment whose compressed size exceeds
// fullThreshold of the block size always gets a dedicated block; smaller
// segments are packed into the first partially-used block with enough
// remaining room, or start a new partial block if none fits.
type PartialBlockManager struct {
	mgr           block.Manager
	fullThreshold float64

	partials []partialBlock
	buffers  map[uint64][]byte
}

// defaultFullThreshold is the default full-threshold used by
// column_checkpoint_state.cpp.
const defaultFullThreshold = 0.8

// NewPartialBlockManager wraps mgr with defaultFullThreshold (0.8).
func NewPartialBlockManager(mgr block.Manager) *PartialBlockManager {
	return NewPartialBlockManagerWithThreshold(mgr, defaultFullThreshold)
}

// NewPartialBlockManagerWithThreshold is NewPartialBlockManager with an
// explicit full-threshold, exposed mainly for tests.
func NewPartialBlockManagerWithThreshold(mgr block.Manager, fullThreshold float64) *PartialBlockManager {
	return &PartialBlockManager{
		mgr:           mgr,
		fullThreshold: fullThreshold,
		buffers:       make(map[uint64][]byte),
	}
}

// GetBlockAllocation reserves room for a segmentSize-byte image, either
// as a fresh dedicated block or packed into an existing/new partial
// block, per partial_block_manager_t::get_block_allocation.
func (m *PartialBlockManager) GetBlockAllocation(segmentSize uint64) (Allocation, error) {
	blockAllocSize := uint64(m.mgr.BlockSize())

	if float64(segmentSize) > float64(blockAllocSize)*m.fullThreshold {
		id, err := m.mgr.FreeBlockID()
		if err != nil {
			return Allocation{}, err
		}
		return Allocation{BlockID: id, Offset: 0, Size: segmentSize}, nil
	}

	for i := range m.partials {
		pb := &m.partials[i]
		remaining := pb.capacity - uint64(pb.used)
		if remaining >= segmentSize {
			offset := pb.used
			pb.used += uint32(segmentSize)
			return Allocation{BlockID: pb.blockID, Offset: offset, Size: segmentSize}, nil
		}
	}

	id, err := m.mgr.FreeBlockID()
	if err != nil {
		return Allocation{}, err
	}
	m.partials = append(m.partials, partialBlock{blockID: id, used: uint32(segmentSize), capacity: blockAllocSize})
	return Allocation{BlockID: id, Offset: 0, Size: segmentSize}, nil
}

// RegisterPartialBlock adopts an already-allocated block (usedSize bytes
// already spoken for) as a candidate for future packing, per
// partial_block_manager_t::register_partial_block.
func (m *PartialBlockManager) RegisterPartialBlock(blockID uint64, usedSize uint32) {
	m.partials = append(m.partials, partialBlock{
		blockID:  blockID,
		used:     usedSize,
		capacity: uint64(m.mgr.BlockSize()),
	})
}

// WriteToBlock copies data into the in-memory image of blockID at
// offset, allocating and zero-filling that image on first touch. Nothing
// reaches disk until FlushPartialBlocks runs.
func (m *PartialBlockManager) WriteToBlock(blockID uint64, offset uint32, data []byte) {
	buf, ok := m.buffers[blockID]
	if !ok {
		buf = make([]byte, m.mgr.BlockSize())
		m.buffers[blockID] = buf
	}
	copy(buf[offset:], data)
}

// FlushPartialBlocks writes every buffered block image to disk via the
// underlying block manager, then clears all bookkeeping, per
// partial_block_manager_t::flush_partial_blocks.
func (m *PartialBlockManager) FlushPartialBlocks() error {
	for id, buf := range m.buffers {
		if err := m.mgr.Write(buf, id); err != nil {
			return err
		}
	}
	m.buffers = make(map[uint64][]byte)
	m.partials = nil
	return nil
}
