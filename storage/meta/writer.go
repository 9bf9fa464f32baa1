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

// Writer allocates blocks on demand and writes typed primitives or raw
// bytes into a chained metadata stream. The Root() pointer must be
// stored by the caller (e.g. in the file header, or a catalog record) to
// later reconstruct a Reader.
type Writer struct {
	pool      *block.Pool
	mgr       block.Manager
	blockSize int

	cur    *block.BufferHandle
	curID  uint64
	offset uint32
	root   block.Pointer
	prevID uint64
	hasCur bool
}

// NewWriter creates a Writer over pool/mgr. The first block is allocated
// lazily on the first write so that an unused Writer never consumes a
// block ID.
func NewWriter(pool *block.Pool, mgr block.Manager) *Writer {
	return &Writer{pool: pool, mgr: mgr, blockSize: mgr.BlockSize()}
}

// Root returns the pointer to the start of the chain. It is valid only
// after at least one write.
func (w *Writer) Root() block.Pointer { return w.root }

func (w *Writer) ensureBlock() error {
	if w.hasCur {
		return nil
	}
	id, err := w.mgr.FreeBlockID()
	if err != nil {
		return err
	}
	w.cur = w.pool.PinNew(id)
	w.curID = id
	w.offset = 0
	w.root = block.Pointer{BlockID: id, Offset: 0}
	w.hasCur = true
	return nil
}

// ensureSpace guarantees at least n contiguous bytes are available in
// the current block before the reserved tail pointer, rolling over to a
// freshly allocated block (and linking it) if necessary.
func (w *Writer) ensureSpace(n int) error {
	if err := w.ensureBlock(); err != nil {
		return err
	}
	if int(w.offset)+n <= w.blockSize-pointerSize {
		return nil
	}
	nextID, err := w.mgr.FreeBlockID()
	if err != nil {
		return err
	}
	writePointerAt(w.cur.Ptr(), w.blockSize-pointerSize, block.Pointer{BlockID: nextID, Offset: 0})
	w.cur.MarkModified()
	if err := w.flushCurrent(); err != nil {
		return err
	}
	w.cur = w.pool.PinNew(nextID)
	w.curID = nextID
	w.offset = 0
	return nil
}

func (w *Writer) flushCurrent() error {
	if err := w.mgr.Write(w.cur.Ptr(), w.curID); err != nil {
		return err
	}
	w.cur.Release()
	return nil
}

// WriteUint64 writes a big-endian uint64.
func (w *Writer) WriteUint64(v uint64) error {
	if err := w.ensureSpace(8); err != nil {
		return err
	}
	binary.BigEndian.PutUint64(w.cur.Ptr()[w.offset:], v)
	w.offset += 8
	w.cur.MarkModified()
	return nil
}

// WriteInt64 writes a big-endian int64.
func (w *Writer) WriteInt64(v int64) error { return w.WriteUint64(uint64(v)) }

// WriteUint32 writes a big-endian uint32.
func (w *Writer) WriteUint32(v uint32) error {
	if err := w.ensureSpace(4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(w.cur.Ptr()[w.offset:], v)
	w.offset += 4
	w.cur.MarkModified()
	return nil
}

// WriteByte writes a single byte.
func (w *Writer) WriteByte(v byte) error {
	if err := w.ensureSpace(1); err != nil {
		return err
	}
	w.cur.Ptr()[w.offset] = v
	w.offset++
	w.cur.MarkModified()
	return nil
}

// WriteBool writes a single byte, 1 for true and 0 for false.
func (w *Writer) WriteBool(v bool) error {
	if v {
		return w.WriteByte(1)
	}
	return w.WriteByte(0)
}

// WriteBytes writes a length-prefixed raw byte payload, which may span
// multiple chained blocks.
func (w *Writer) WriteBytes(b []byte) error {
	if err := w.WriteUint32(uint32(len(b))); err != nil {
		return err
	}
	remaining := b
	for len(remaining) > 0 {
		if err := w.ensureSpace(1); err != nil {
			return err
		}
		avail := w.blockSize - pointerSize - int(w.offset)
		n := len(remaining)
		if n > avail {
			n = avail
		}
		copy(w.cur.Ptr()[w.offset:], remaining[:n])
		w.offset += uint32(n)
		w.cur.MarkModified()
		remaining = remaining[n:]
	}
	return nil
}

// WriteString writes a length-prefixed UTF-8 string.
func (w *Writer) WriteString(s string) error { return w.WriteBytes([]byte(s)) }

// Finish flushes the current block (zeroing its tail pointer to mark the
// end of the chain) and releases the writer's pin. Finish must be called
// exactly once after the last write.
func (w *Writer) Finish() error {
	if !w.hasCur {
		return nil
	}
	writePointerAt(w.cur.Ptr(), w.blockSize-pointerSize, block.Pointer{})
	w.cur.MarkModified()
	return w.flushCurrent()
}
