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

// Package index implements spec.md §4.10's index engine and B+tree
// index: a per-table collection of indexes reachable by key prefix, by
// ID, by disk-agent address, and by name, plus an in-memory B+tree
// index and a disk-backed variant persisting through storage/block.
// Grounded on
// original_source/components/index/index_engine.cpp (the four-map
// engine shape) and
// original_source/services/index/index_disk.cpp (the disk variant).
package index

import (
	"sort"
	"strings"
	"sync"

	"github.com/dchest/siphash"

	"github.com/obxdb/obx/obxerr"
	"github.com/obxdb/obx/value"
)

// CompareOp names the range-mapping operator spec.md §4.10 defines over
// an index: eq/ne/gt/lt/gte/lte.
type CompareOp int

const (
	Eq CompareOp = iota
	Ne
	Gt
	Lt
	Gte
	Lte
)

// Index is anything an Engine can own: it answers range queries over a
// single value and supports insertion/removal of (value, row ID) pairs.
type Index interface {
	Name() string
	Keys() []string
	Find(op CompareOp, v value.Value) []int64
	Insert(v value.Value, rowID int64)
	Remove(v value.Value, rowID int64, all bool)
	IsDisk() bool
	DiskAgentAddress() string
}

// keyOf hashes (database, table, index name) into the 64-bit prefix
// spec.md §4.10's key-prefix map uses, with SipHash-2-4 under a fixed
// key. This is the only hashing in the package; the disk B+tree variant
// does not hash its keys.
var siphashKey0, siphashKey1 uint64 = 0x6f62785f696e6465, 0x785f656e67696e65

func keyOf(database, table, name string) uint64 {
	var b strings.Builder
	b.WriteString(database)
	b.WriteByte(0)
	b.WriteString(table)
	b.WriteByte(0)
	b.WriteString(name)
	return siphash.Hash(siphashKey0, siphashKey1, []byte(b.String()))
}

// Engine owns every index for one table (or, when shared across tables
// via distinct key prefixes, for a database) and maps it four ways:
// key prefix, ID, disk-agent address, and name. Grounded on
// index_engine_t's mapper_/index_to_mapper_/index_to_address_/
// index_to_name_ maps.
type Engine struct {
	mu sync.RWMutex

	byPrefix map[uint64]Index
	byID     map[uint32]Index
	byAddr   map[string]Index
	byName   map[string]Index

	order []Index
	nextID uint32
}

// NewEngine returns an empty index engine.
func NewEngine() *Engine {
	return &Engine{
		byPrefix: make(map[uint64]Index),
		byID:     make(map[uint32]Index),
		byAddr:   make(map[string]Index),
		byName:   make(map[string]Index),
	}
}

// AddIndex registers idx under the key prefix derived from database,
// table and its name, returning the ID assigned to it.
func (e *Engine) AddIndex(database, table string, idx Index) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++

	e.order = append(e.order, idx)
	e.byID[id] = idx
	e.byName[idx.Name()] = idx
	e.byPrefix[keyOf(database, table, idx.Name())] = idx
	if idx.IsDisk() && idx.DiskAgentAddress() != "" {
		e.byAddr[idx.DiskAgentAddress()] = idx
	}
	return id
}

// DropIndex removes idx from every map the engine keeps.
func (e *Engine) DropIndex(idx Index) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.byName, idx.Name())
	if idx.IsDisk() {
		delete(e.byAddr, idx.DiskAgentAddress())
	}
	for k, v := range e.byPrefix {
		if v == idx {
			delete(e.byPrefix, k)
		}
	}
	for k, v := range e.byID {
		if v == idx {
			delete(e.byID, k)
		}
	}
	for i, v := range e.order {
		if v == idx {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// ByID returns the index registered under id, or nil.
func (e *Engine) ByID(id uint32) Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.byID[id]
}

// ByName returns the index registered under name, or nil.
func (e *Engine) ByName(name string) Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.byName[name]
}

// ByPrefix returns the index matching (database, table, name), or nil.
func (e *Engine) ByPrefix(database, table, name string) Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.byPrefix[keyOf(database, table, name)]
}

// ByDiskAgentAddress returns the index whose disk agent lives at addr,
// or nil.
func (e *Engine) ByDiskAgentAddress(addr string) Index {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.byAddr[addr]
}

// HasIndex reports whether an index named name is registered.
func (e *Engine) HasIndex(name string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.byName[name]
	return ok
}

// Names returns every registered index's name, sorted for determinism.
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.byName))
	for name := range e.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// matchingColumns reports whether every column idx is keyed on is
// present in columns — the engine's row fan-out test before dispatching
// an insert/delete to an index, grounded on index_engine.cpp's
// is_match_column.
func matchingColumns(idx Index, columns []string) bool {
	present := make(map[string]bool, len(columns))
	for _, c := range columns {
		present[c] = true
	}
	for _, k := range idx.Keys() {
		if !present[k] {
			return false
		}
	}
	return true
}

// InsertRow dispatches (value, rowID) to every index whose keys are all
// present in columns. The value is the entry of values at the position
// of the index's first key column; further key columns are not used.
func (e *Engine) InsertRow(columns []string, values []value.Value, rowID int64) error {
	e.mu.RLock()
	indexes := append([]Index(nil), e.order...)
	e.mu.RUnlock()

	for _, idx := range indexes {
		if !matchingColumns(idx, columns) {
			continue
		}
		v, err := valueForIndex(idx, columns, values)
		if err != nil {
			return err
		}
		idx.Insert(v, rowID)
	}
	return nil
}

// DeleteRow removes rowID from every index whose keys are all present
// in columns.
func (e *Engine) DeleteRow(columns []string, values []value.Value, rowID int64) error {
	e.mu.RLock()
	indexes := append([]Index(nil), e.order...)
	e.mu.RUnlock()

	for _, idx := range indexes {
		if !matchingColumns(idx, columns) {
			continue
		}
		v, err := valueForIndex(idx, columns, values)
		if err != nil {
			return err
		}
		idx.Remove(v, rowID, false)
	}
	return nil
}

func valueForIndex(idx Index, columns []string, values []value.Value) (value.Value, error) {
	keys := idx.Keys()
	if len(keys) == 0 {
		return value.Value{}, obxerr.InvalidArgument("index: %q has no keys", idx.Name())
	}
	for i, c := range columns {
		if c == keys[0] {
			return values[i], nil
		}
	}
	return value.Value{}, obxerr.NotFound("index: column %q not present for index %q", keys[0], idx.Name())
}
