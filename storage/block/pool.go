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

package block

import (
	"sync"
	"sync/atomic"

	"github.com/obxdb/obx/obxerr"
)

// residentBlock is one cached block's bytes plus pin/dirty bookkeeping.
// pinCount is atomic, so Release takes no lock. Pin still takes Pool.mu
// to look the block up, so a pin on an already-resident block waits for
// that mutex and is not wait-free.
type residentBlock struct {
	id       uint64
	buf      []byte
	pinCount int32
	modified bool
}

// Pool is the buffer pool of spec.md §4.2: it caps resident memory and
// hands out pins that guarantee a block stays resident for the pin's
// lifetime. A single mutex protects the residency list (spec.md §5); the
// pin count itself is atomic.
type Pool struct {
	mgr       Manager
	blockSize int
	capacity  int // max resident blocks

	mu       sync.Mutex
	resident map[uint64]*residentBlock
	// order is an LRU ring: index 0 is least recently touched. Used only
	// to pick eviction candidates among unpinned blocks.
	order []uint64
}

// NewPool creates a Pool backed by mgr, capped at capacityBytes of
// resident block memory (rounded down to whole blocks, minimum 1 block).
func NewPool(mgr Manager, capacityBytes int) *Pool {
	bs := mgr.BlockSize()
	cap := capacityBytes / bs
	if cap < 1 {
		cap = 1
	}
	return &Pool{
		mgr:       mgr,
		blockSize: bs,
		capacity:  cap,
		resident:  make(map[uint64]*residentBlock),
	}
}

// BlockHandle wraps a block ID and the Pool it came from. It is a cheap,
// copyable reference; pinning it is what guarantees residency.
type BlockHandle struct {
	ID   uint64
	pool *Pool
}

// Handle returns a BlockHandle for id. It does not pin or read the block.
func (p *Pool) Handle(id uint64) *BlockHandle {
	return &BlockHandle{ID: id, pool: p}
}

// Pin pins h's block into memory (reading it from the Manager on a cache
// miss, evicting another block first if the pool is full) and returns a
// BufferHandle. BufferHandle is logically move-only: never copy a
// BufferHandle value, always pass its pointer, and call Release exactly
// once.
func (h *BlockHandle) Pin() (*BufferHandle, error) {
	return h.pool.pin(h.ID)
}

func (p *Pool) pin(id uint64) (*BufferHandle, error) {
	p.mu.Lock()
	rb, ok := p.resident[id]
	if ok {
		atomic.AddInt32(&rb.pinCount, 1)
		p.touch(id)
		p.mu.Unlock()
		return &BufferHandle{handle: &BlockHandle{ID: id, pool: p}, rb: rb}, nil
	}
	// cache miss: make room under the lock, then read with the lock
	// released; if a concurrent pin populated id meanwhile, its entry is
	// reused below.
	if len(p.resident) >= p.capacity {
		if err := p.evictLocked(); err != nil {
			p.mu.Unlock()
			return nil, err
		}
	}
	buf := make([]byte, p.blockSize)
	p.mu.Unlock()

	if err := p.mgr.Read(id, buf); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.resident[id]; ok {
		// raced with another pin that populated it first
		atomic.AddInt32(&existing.pinCount, 1)
		p.touch(id)
		return &BufferHandle{handle: &BlockHandle{ID: id, pool: p}, rb: existing}, nil
	}
	rb = &residentBlock{id: id, buf: buf, pinCount: 1}
	p.resident[id] = rb
	p.order = append(p.order, id)
	return &BufferHandle{handle: &BlockHandle{ID: id, pool: p}, rb: rb}, nil
}

// PinNew pins a freshly allocated block (not yet backed by any prior
// on-disk contents) without issuing a Read, used when a caller has just
// obtained a new block ID from the Manager and wants to fill it in
// memory before the first Write.
func (p *Pool) PinNew(id uint64) *BufferHandle {
	p.mu.Lock()
	defer p.mu.Unlock()
	rb := &residentBlock{id: id, buf: make([]byte, p.blockSize), pinCount: 1, modified: true}
	p.resident[id] = rb
	p.order = append(p.order, id)
	return &BufferHandle{handle: &BlockHandle{ID: id, pool: p}, rb: rb}
}

// touch moves id to the most-recently-used end of the order slice. Must
// be called with p.mu held.
func (p *Pool) touch(id uint64) {
	for i, v := range p.order {
		if v == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.order = append(p.order, id)
}

// evictLocked selects an eviction candidate, preferring unpinned and
// unmodified blocks first, then flushing dirty ones through the block
// manager, per spec.md §4.2. Must be called with p.mu held.
func (p *Pool) evictLocked() error {
	// pass 1: unpinned + clean
	for i, id := range p.order {
		rb := p.resident[id]
		if atomic.LoadInt32(&rb.pinCount) == 0 && !rb.modified {
			p.evictAt(i)
			return nil
		}
	}
	// pass 2: unpinned, flush if dirty
	for i, id := range p.order {
		rb := p.resident[id]
		if atomic.LoadInt32(&rb.pinCount) == 0 {
			if rb.modified {
				if err := p.mgr.Write(rb.buf, rb.id); err != nil {
					return err
				}
			}
			p.evictAt(i)
			return nil
		}
	}
	return obxerr.Fatalf("block.Pool.evict", "no unpinned block available to evict (pool exhausted)")
}

func (p *Pool) evictAt(i int) {
	id := p.order[i]
	delete(p.resident, id)
	p.order = append(p.order[:i], p.order[i+1:]...)
}

// BufferHandle is a short-lived pin on a resident block, per spec.md
// §4.2. While it exists, Ptr() is stable and writable. Multiple pins on
// the same block share the same underlying buffer.
type BufferHandle struct {
	handle *BlockHandle
	rb     *residentBlock
}

// Ptr returns the block's buffer. It is valid only until Release is
// called.
func (b *BufferHandle) Ptr() []byte { return b.rb.buf }

// BlockHandle returns the BlockHandle this pin was taken on.
func (b *BufferHandle) BlockHandle() *BlockHandle { return b.handle }

// MarkModified flags the block dirty so eviction flushes it through the
// block manager.
func (b *BufferHandle) MarkModified() { b.rb.modified = true }

// Release unpins the block. It must be called exactly once per
// BufferHandle.
func (b *BufferHandle) Release() {
	if b.rb == nil {
		return
	}
	atomic.AddInt32(&b.rb.pinCount, -1)
	b.rb = nil
}
