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

package catalog

import (
	"bytes"
	"encoding/binary"
	"os"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/obxdb/obx/obxerr"
)

// checksumSize is the width of the trailing BLAKE2b-256 checksum (the
// full digest, not a truncated u32).
const checksumSize = 32

// magic identifies an obx catalog file, per spec.md §4.9's on-disk
// interface: `[ magic: "OBXC" ][ version: u32 ][ payload ][ checksum
// ]`. formatVersion is bumped whenever encodeDatabases/decodeDatabases's
// wire format changes incompatibly; Load rejects anything else outright
// rather than attempting a best-effort decode.
var magic = [4]byte{'O', 'B', 'X', 'C'}

const formatVersion uint32 = 1

const headerSize = 4 + 4 // magic + version

// Storage is the single-file catalog described by spec.md §4.9: a list
// of databases, each with tables/sequences/views/macros, framed as
// `[ magic "OBXC" ][ version u32 ][ payload ][ checksum ]`. Every
// mutating method rewrites the whole file; Load rejects anything whose
// magic, version, or checksum don't match before accepting the file's
// contents. Grounded on catalog_storage_t's call shape in
// original_source/services/disk/tests/test_catalog_storage.cpp.
type Storage struct {
	mu   sync.Mutex
	path string
	dbs  []*database
}

// Open returns a Storage bound to path. It does not read path; call
// Load to populate from an existing file (matching catalog_storage_t's
// two-step construct-then-load in the original's tests).
func Open(path string) *Storage {
	return &Storage{path: path}
}

// Load reads and verifies path, replacing the in-memory database list.
// A missing file is not an error (an empty, freshly created catalog);
// a checksum mismatch is.
func (s *Storage) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.dbs = nil
			return nil
		}
		return obxerr.IOFailed("catalog: reading %s: %v", s.path, err)
	}
	if len(data) < headerSize+checksumSize {
		return obxerr.Corrupted("catalog: %s is shorter than its header and checksum trailer", s.path)
	}
	if !bytes.Equal(data[:4], magic[:]) {
		return obxerr.Corrupted("catalog: %s has no OBXC magic number", s.path)
	}
	gotVersion := binary.BigEndian.Uint32(data[4:headerSize])
	if gotVersion != formatVersion {
		return obxerr.Corrupted("catalog: %s has format version %d, want %d", s.path, gotVersion, formatVersion)
	}
	checked := data[:len(data)-checksumSize]
	payload := data[headerSize : len(data)-checksumSize]
	want := data[len(data)-checksumSize:]
	got := blake2b.Sum256(checked)
	if !equalChecksum(got[:], want) {
		return obxerr.Corrupted("catalog: checksum mismatch loading %s", s.path)
	}
	dbs, err := decodeDatabases(payload)
	if err != nil {
		return err
	}
	s.dbs = dbs
	return nil
}

func equalChecksum(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// save rewrites the whole catalog file: the OBXC magic number, the
// format version, the encoded payload, and a BLAKE2b-256 checksum over
// everything ahead of it. Caller must hold s.mu.
func (s *Storage) save() error {
	payload := encodeDatabases(s.dbs)
	out := make([]byte, 0, headerSize+len(payload)+checksumSize)
	out = append(out, magic[:]...)
	out = binary.BigEndian.AppendUint32(out, formatVersion)
	out = append(out, payload...)
	sum := blake2b.Sum256(out)
	out = append(out, sum[:]...)

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return obxerr.IOFailed("catalog: writing %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return obxerr.IOFailed("catalog: renaming %s to %s: %v", tmp, s.path, err)
	}
	return nil
}

func (s *Storage) findDatabase(name string) *database {
	for _, d := range s.dbs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// AppendDatabase creates database name if it does not already exist.
func (s *Storage) AppendDatabase(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findDatabase(name) != nil {
		return nil
	}
	s.dbs = append(s.dbs, &database{Name: name})
	return s.save()
}

// RemoveDatabase drops database name, if present.
func (s *Storage) RemoveDatabase(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.dbs {
		if d.Name == name {
			s.dbs = append(s.dbs[:i], s.dbs[i+1:]...)
			return s.save()
		}
	}
	return nil
}

// DatabaseExists reports whether database name exists.
func (s *Storage) DatabaseExists(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findDatabase(name) != nil
}

// Databases returns the names of every database, in creation order.
func (s *Storage) Databases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.dbs))
	for i, d := range s.dbs {
		out[i] = d.Name
	}
	return out
}

// AppendTable adds table to database dbName. The database must already
// exist (AppendDatabase first, matching the original's test setup).
func (s *Storage) AppendTable(dbName string, table Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return obxerr.NotFound("catalog: database %q not found", dbName)
	}
	if d.tableIndex(table.Name) >= 0 {
		return obxerr.AlreadyExists("catalog: table %q already exists in database %q", table.Name, dbName)
	}
	d.Tables = append(d.Tables, table)
	return s.save()
}

// RemoveTable drops table tableName from dbName, if present.
func (s *Storage) RemoveTable(dbName, tableName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return nil
	}
	if i := d.tableIndex(tableName); i >= 0 {
		d.Tables = append(d.Tables[:i], d.Tables[i+1:]...)
		return s.save()
	}
	return nil
}

// FindTable returns a copy of table tableName in database dbName, or nil
// if it does not exist.
func (s *Storage) FindTable(dbName, tableName string) *Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return nil
	}
	if i := d.tableIndex(tableName); i >= 0 {
		t := d.Tables[i]
		return &t
	}
	return nil
}

// Tables returns a copy of every table in database dbName.
func (s *Storage) Tables(dbName string) []Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return nil
	}
	return append([]Table(nil), d.Tables...)
}

// AppendSequence adds seq to database dbName.
func (s *Storage) AppendSequence(dbName string, seq Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return obxerr.NotFound("catalog: database %q not found", dbName)
	}
	d.Sequences = append(d.Sequences, seq)
	return s.save()
}

// RemoveSequence drops sequence name from dbName, if present.
func (s *Storage) RemoveSequence(dbName, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return nil
	}
	if i := d.sequenceIndex(name); i >= 0 {
		d.Sequences = append(d.Sequences[:i], d.Sequences[i+1:]...)
		return s.save()
	}
	return nil
}

// Sequences returns a copy of every sequence in database dbName.
func (s *Storage) Sequences(dbName string) []Sequence {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return nil
	}
	return append([]Sequence(nil), d.Sequences...)
}

// AppendView adds v to database dbName.
func (s *Storage) AppendView(dbName string, v View) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return obxerr.NotFound("catalog: database %q not found", dbName)
	}
	d.Views = append(d.Views, v)
	return s.save()
}

// RemoveView drops view name from dbName, if present.
func (s *Storage) RemoveView(dbName, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return nil
	}
	if i := d.viewIndex(name); i >= 0 {
		d.Views = append(d.Views[:i], d.Views[i+1:]...)
		return s.save()
	}
	return nil
}

// Views returns a copy of every view in database dbName.
func (s *Storage) Views(dbName string) []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return nil
	}
	return append([]View(nil), d.Views...)
}

// AppendMacro adds m to database dbName.
func (s *Storage) AppendMacro(dbName string, m Macro) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return obxerr.NotFound("catalog: database %q not found", dbName)
	}
	d.Macros = append(d.Macros, m)
	return s.save()
}

// RemoveMacro drops macro name from dbName, if present.
func (s *Storage) RemoveMacro(dbName, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return nil
	}
	if i := d.macroIndex(name); i >= 0 {
		d.Macros = append(d.Macros[:i], d.Macros[i+1:]...)
		return s.save()
	}
	return nil
}

// Macros returns a copy of every macro in database dbName.
func (s *Storage) Macros(dbName string) []Macro {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDatabase(dbName)
	if d == nil {
		return nil
	}
	return append([]Macro(nil), d.Macros...)
}
