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

package meta

import (
	"encoding/binary"

	"github.com/obxdb/obx/storage/block"
)

// Reader follows the (block_id, offset) pointer chain a Writer produced.
type Reader struct {
	pool      *block.Pool
	mgr       block.Manager
	blockSize int

	cur    *block.BufferHandle
	curID  uint64
	offset uint32
}

// NewReader opens a Reader at root.
func NewReader(pool *block.Pool, mgr block.Manager, root block.Pointer) (*Reader, error) {
	h := pool.Handle(root.BlockID)
	buf, err := h.Pin()
	if err != nil {
		return nil, err
	}
	return &Reader{
		pool:      pool,
		mgr:       mgr,
		blockSize: mgr.BlockSize(),
		cur:       buf,
		curID:     root.BlockID,
		offset:    root.Offset,
	}, nil
}

// Close releases the reader's current pin.
func (r *Reader) Close() error {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	return nil
}

func (r *Reader) ensureSpace(n int) error {
	if int(r.offset)+n <= r.blockSize-pointerSize {
		return nil
	}
	next := readPointerAt(r.cur.Ptr(), r.blockSize-pointerSize)
	r.cur.Release()
	if next.IsZero() {
		r.cur = nil
		return ErrEndOfChain
	}
	h := r.pool.Handle(next.BlockID)
	buf, err := h.Pin()
	if err != nil {
		return err
	}
	r.cur = buf
	r.curID = next.BlockID
	r.offset = next.Offset
	return nil
}

// ReadUint64 reads a big-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.ensureSpace(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.cur.Ptr()[r.offset:])
	r.offset += 8
	return v, nil
}

// ReadInt64 reads a big-endian int64.
func (r *Reader) ReadInt64() (int64, error) {
	v, err := r.ReadUint64()
	return int64(v), err
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.ensureSpace(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.cur.Ptr()[r.offset:])
	r.offset += 4
	return v, nil
}

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if err := r.ensureSpace(1); err != nil {
		return 0, err
	}
	v := r.cur.Ptr()[r.offset]
	r.offset++
	return v, nil
}

// ReadBool reads a single byte as a bool.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadByte()
	return v != 0, err
}

// ReadBytes reads a length-prefixed raw byte payload, possibly spanning
// multiple chained blocks.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadUint32()
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	got := uint32(0)
	for got < n {
		if err := r.ensureSpace(1); err != nil {
			return nil, err
		}
		avail := r.blockSize - pointerSize - int(r.offset)
		want := int(n - got)
		if want > avail {
			want = avail
		}
		copy(out[got:], r.cur.Ptr()[r.offset:int(r.offset)+want])
		r.offset += uint32(want)
		got += uint32(want)
	}
	return out, nil
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	return string(b), err
}
