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
	"bytes"
	"path/filepath"
	"testing"

	"github.com/obxdb/obx/storage/block"
)

func setup(t *testing.T) (*block.Pool, block.Manager) {
	t.Helper()
	mgr, err := block.Open(filepath.Join(t.TempDir(), "main.db"), 512)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { mgr.Close() })
	return block.NewPool(mgr, 64*1024), mgr
}

func TestMetadataChainRoundTrip(t *testing.T) {
	pool, mgr := setup(t)
	w := NewWriter(pool, mgr)

	big := bytes.Repeat([]byte("x"), 5000) // spans many 512-byte blocks
	if err := w.WriteUint64(42); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteString("hello"); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBytes(big); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteBool(true); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteInt64(-7); err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("Finish: %v", err)
	}

	r, err := NewReader(pool, mgr, w.Root())
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	if v, err := r.ReadUint64(); err != nil || v != 42 {
		t.Fatalf("ReadUint64 = %d, %v", v, err)
	}
	if s, err := r.ReadString(); err != nil || s != "hello" {
		t.Fatalf("ReadString = %q, %v", s, err)
	}
	if b, err := r.ReadBytes(); err != nil || !bytes.Equal(b, big) {
		t.Fatalf("ReadBytes mismatch, err=%v", err)
	}
	if v, err := r.ReadBool(); err != nil || v != true {
		t.Fatalf("ReadBool = %v, %v", v, err)
	}
	if v, err := r.ReadInt64(); err != nil || v != -7 {
		t.Fatalf("ReadInt64 = %d, %v", v, err)
	}
}
