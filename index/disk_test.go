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

package index

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/obxdb/obx/storage/block"
	"github.com/obxdb/obx/value"
)

func tempBlockManager(t *testing.T) *block.FileManager {
	t.Helper()
	dir := t.TempDir()
	m, err := block.Open(filepath.Join(dir, "index.db"), 512)
	if err != nil {
		t.Fatalf("block.Open: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestDiskBTreeInsertFindPersists(t *testing.T) {
	mgr := tempBlockManager(t)
	dt, err := OpenDiskBTree(mgr, "by_id", []string{"id"}, "", 0)
	if err != nil {
		t.Fatalf("OpenDiskBTree: %v", err)
	}

	if err := dt.InsertErr(value.NewInt64(1), 100); err != nil {
		t.Fatalf("InsertErr: %v", err)
	}
	if err := dt.InsertErr(value.NewInt64(2), 200); err != nil {
		t.Fatalf("InsertErr: %v", err)
	}

	got := dt.Find(Eq, value.NewInt64(1))
	if !reflect.DeepEqual(got, []int64{100}) {
		t.Fatalf("Find(Eq, 1) = %v, want [100]", got)
	}

	root := dt.RootBlock()
	if root == 0 {
		t.Fatal("RootBlock() = 0 after inserts, want nonzero")
	}

	// Reopen from the persisted root block and confirm the snapshot
	// round-trips (spec.md §8 testable property 13's load half, applied
	// to the disk index's own snapshot chain).
	reopened, err := OpenDiskBTree(mgr, "by_id", []string{"id"}, "", root)
	if err != nil {
		t.Fatalf("reopen OpenDiskBTree: %v", err)
	}
	got1 := reopened.Find(Eq, value.NewInt64(1))
	got2 := reopened.Find(Eq, value.NewInt64(2))
	if !reflect.DeepEqual(got1, []int64{100}) || !reflect.DeepEqual(got2, []int64{200}) {
		t.Fatalf("after reopen: Find(1)=%v Find(2)=%v", got1, got2)
	}
}

func TestDiskBTreeRemoveAndMultiBlockChain(t *testing.T) {
	mgr := tempBlockManager(t)
	dt, err := OpenDiskBTree(mgr, "by_id", []string{"id"}, "", 0)
	if err != nil {
		t.Fatalf("OpenDiskBTree: %v", err)
	}

	// Insert enough distinct keys that the snapshot must span multiple
	// 512-byte blocks, exercising the chain-following path in load/persist.
	for i := int64(0); i < 100; i++ {
		if err := dt.InsertErr(value.NewInt64(i), i*10); err != nil {
			t.Fatalf("InsertErr(%d): %v", i, err)
		}
	}

	root := dt.RootBlock()
	reopened, err := OpenDiskBTree(mgr, "by_id", []string{"id"}, "", root)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := mustInt64s(reopened.Find(Gte, value.NewInt64(95)))
	want := []int64{950, 960, 970, 980, 990}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Find(Gte, 95) after reopen = %v, want %v", got, want)
	}

	if err := dt.RemoveErr(value.NewInt64(50), 0, true); err != nil {
		t.Fatalf("RemoveErr: %v", err)
	}
	if got := dt.Find(Eq, value.NewInt64(50)); got != nil {
		t.Fatalf("Find(Eq, 50) after remove = %v, want nil", got)
	}
}

func TestDiskBTreeIsDisk(t *testing.T) {
	mgr := tempBlockManager(t)
	dt, err := OpenDiskBTree(mgr, "by_ts", []string{"ts"}, "agent-addr", 0)
	if err != nil {
		t.Fatalf("OpenDiskBTree: %v", err)
	}
	if !dt.IsDisk() {
		t.Fatal("IsDisk() = false, want true")
	}
	if dt.DiskAgentAddress() != "agent-addr" {
		t.Fatalf("DiskAgentAddress() = %q, want agent-addr", dt.DiskAgentAddress())
	}
}
