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
	"path/filepath"
	"testing"

	"github.com/obxdb/obx/storage/block"
)

func tempBlockManager(t *testing.T) block.Manager {
	t.Helper()
	m, err := block.Open(filepath.Join(t.TempDir(), "main.db"), 256)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestGetBlockAllocationPacksSmallSegmentsTogether(t *testing.T) {
	mgr := tempBlockManager(t)
	pbm := NewPartialBlockManager(mgr)

	a1, err := pbm.GetBlockAllocation(10)
	if err != nil {
		t.Fatalf("GetBlockAllocation: %v", err)
	}
	a2, err := pbm.GetBlockAllocation(20)
	if err != nil {
		t.Fatalf("GetBlockAllocation: %v", err)
	}
	if a1.BlockID != a2.BlockID {
		t.Fatalf("two small segments landed in different blocks: %v, %v", a1, a2)
	}
	if a2.Offset != 10 {
		t.Fatalf("second allocation offset = %d, want 10 (packed after the first)", a2.Offset)
	}
}

func TestGetBlockAllocationGivesLargeSegmentADedicatedBlock(t *testing.T) {
	mgr := tempBlockManager(t)
	pbm := NewPartialBlockManager(mgr)

	small, err := pbm.GetBlockAllocation(5)
	if err != nil {
		t.Fatalf("GetBlockAllocation: %v", err)
	}
	big, err := pbm.GetBlockAllocation(230) // > 0.8 * 256
	if err != nil {
		t.Fatalf("GetBlockAllocation: %v", err)
	}
	if big.BlockID == small.BlockID {
		t.Fatalf("oversized segment shared a block instead of getting a dedicated one")
	}
	if big.Offset != 0 {
		t.Fatalf("dedicated block allocation offset = %d, want 0", big.Offset)
	}
}

func TestGetBlockAllocationStartsNewPartialBlockWhenFull(t *testing.T) {
	mgr := tempBlockManager(t)
	pbm := NewPartialBlockManager(mgr)

	a1, err := pbm.GetBlockAllocation(100)
	if err != nil {
		t.Fatalf("GetBlockAllocation: %v", err)
	}
	a2, err := pbm.GetBlockAllocation(100) // 156 remaining in a 256-byte block, still fits
	if err != nil {
		t.Fatalf("GetBlockAllocation: %v", err)
	}
	if a1.BlockID != a2.BlockID {
		t.Fatalf("second allocation should still fit the first partial block")
	}
	a3, err := pbm.GetBlockAllocation(100) // no longer fits (200 used, 56 remaining)
	if err != nil {
		t.Fatalf("GetBlockAllocation: %v", err)
	}
	if a3.BlockID == a1.BlockID {
		t.Fatalf("third allocation should have started a new partial block")
	}
}

func TestFlushPartialBlocksWritesAndClears(t *testing.T) {
	mgr := tempBlockManager(t)
	pbm := NewPartialBlockManager(mgr)

	alloc, err := pbm.GetBlockAllocation(4)
	if err != nil {
		t.Fatalf("GetBlockAllocation: %v", err)
	}
	pbm.WriteToBlock(alloc.BlockID, alloc.Offset, []byte{1, 2, 3, 4})

	if err := pbm.FlushPartialBlocks(); err != nil {
		t.Fatalf("FlushPartialBlocks: %v", err)
	}
	if len(pbm.buffers) != 0 || len(pbm.partials) != 0 {
		t.Fatalf("FlushPartialBlocks did not clear bookkeeping")
	}

	raw := make([]byte, mgr.BlockSize())
	if err := mgr.Read(alloc.BlockID, raw); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i, want := range []byte{1, 2, 3, 4} {
		if raw[i] != want {
			t.Fatalf("raw[%d] = %d, want %d", i, raw[i], want)
		}
	}
}
