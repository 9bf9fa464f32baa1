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

// Package meta implements the metadata overlay of spec.md §4.3: because
// the catalog and table descriptors are smaller than a block yet may
// span blocks, the overlay multiplexes multiple logical streams onto the
// block store by chaining blocks with a trailing (block_id,
// in_block_offset) pointer. There is no direct teacher analog for this
// (sneller's on-disk format is a flat ion/blockfmt trailer, not a
// block-chained metadata stream); the chaining scheme instead follows
// the block-capacity bookkeeping style of
// _examples/original_source/core/b_plus_tree/block.hpp.
package meta

import (
	"encoding/binary"

	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/storage/block"
)

// pointerSize is the serialized size of a block.Pointer: 8-byte block ID
// + 4-byte offset, reserved at the tail of every block in a chain.
const pointerSize = 12

func writePointerAt(buf []byte, off int, p block.Pointer) {
	binary.BigEndian.PutUint64(buf[off:], p.BlockID)
	binary.BigEndian.PutUint32(buf[off+8:], p.Offset)
}

func readPointerAt(buf []byte, off int) block.Pointer {
	return block.Pointer{
		BlockID: binary.BigEndian.Uint64(buf[off:]),
		Offset:  binary.BigEndian.Uint32(buf[off+8:]),
	}
}

// ErrEndOfChain is returned by Reader when a read runs past the end of
// the pointer chain (the tail pointer of the final block is zero).
var ErrEndOfChain = obxerr.NotFound("meta: end of pointer chain")
