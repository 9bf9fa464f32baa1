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
	"encoding/binary"

	"github.com/obxdb/obx/obxerr"
)

// The on-disk payload is a flat length-prefixed encoding of the database
// list, the same framing idiom wal/codec.go uses for WAL payloads:
// uvarint-prefixed strings/slices, no external schema needed to parse.
// There is no surviving catalog_storage.hpp wire format to mirror, so
// this shape is original.

func putUvarint(buf []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(buf, tmp[:n]...)
}

func putString(buf []byte, s string) []byte {
	buf = putUvarint(buf, uint64(len(s)))
	return append(buf, s...)
}

func putBool(buf []byte, b bool) []byte {
	if b {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func putInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

type byteReader struct {
	b   []byte
	pos int
}

func (r *byteReader) uvarint() (uint64, error) {
	v, n := binary.Uvarint(r.b[r.pos:])
	if n <= 0 {
		return 0, obxerr.Corrupted("catalog: malformed uvarint in payload")
	}
	r.pos += n
	return v, nil
}

func (r *byteReader) str() (string, error) {
	n, err := r.uvarint()
	if err != nil {
		return "", err
	}
	if uint64(r.pos)+n > uint64(len(r.b)) {
		return "", obxerr.Corrupted("catalog: truncated string in payload")
	}
	s := string(r.b[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *byteReader) boolean() (bool, error) {
	if r.pos >= len(r.b) {
		return false, obxerr.Corrupted("catalog: truncated bool in payload")
	}
	v := r.b[r.pos] != 0
	r.pos++
	return v, nil
}

func (r *byteReader) int64() (int64, error) {
	if r.pos+8 > len(r.b) {
		return 0, obxerr.Corrupted("catalog: truncated int64 in payload")
	}
	v := int64(binary.BigEndian.Uint64(r.b[r.pos : r.pos+8]))
	r.pos += 8
	return v, nil
}

func encodeDatabases(dbs []*database) []byte {
	buf := make([]byte, 0, 256)
	buf = putUvarint(buf, uint64(len(dbs)))
	for _, db := range dbs {
		buf = putString(buf, db.Name)

		buf = putUvarint(buf, uint64(len(db.Tables)))
		for _, t := range db.Tables {
			buf = putString(buf, t.Name)
			buf = append(buf, byte(t.StorageMode))
			buf = putUvarint(buf, uint64(len(t.Columns)))
			for _, c := range t.Columns {
				buf = putString(buf, c.Name)
				buf = putString(buf, c.Type)
				buf = putBool(buf, c.NotNull)
				buf = putBool(buf, c.HasDefault)
			}
			buf = putUvarint(buf, uint64(len(t.PrimaryKeyColumns)))
			for _, pk := range t.PrimaryKeyColumns {
				buf = putString(buf, pk)
			}
		}

		buf = putUvarint(buf, uint64(len(db.Sequences)))
		for _, s := range db.Sequences {
			buf = putString(buf, s.Name)
			buf = putInt64(buf, s.StartValue)
			buf = putInt64(buf, s.Increment)
			buf = putInt64(buf, s.CurrentValue)
			buf = putInt64(buf, s.MinValue)
			buf = putInt64(buf, s.MaxValue)
		}

		buf = putUvarint(buf, uint64(len(db.Views)))
		for _, v := range db.Views {
			buf = putString(buf, v.Name)
			buf = putString(buf, v.QuerySQL)
		}

		buf = putUvarint(buf, uint64(len(db.Macros)))
		for _, m := range db.Macros {
			buf = putString(buf, m.Name)
			buf = putUvarint(buf, uint64(len(m.Parameters)))
			for _, p := range m.Parameters {
				buf = putString(buf, p)
			}
			buf = putString(buf, m.BodySQL)
		}
	}
	return buf
}

func decodeDatabases(raw []byte) ([]*database, error) {
	r := byteReader{b: raw}
	numDBs, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	dbs := make([]*database, numDBs)
	for i := range dbs {
		db := &database{}
		if db.Name, err = r.str(); err != nil {
			return nil, err
		}

		numTables, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		db.Tables = make([]Table, numTables)
		for j := range db.Tables {
			t := &db.Tables[j]
			if t.Name, err = r.str(); err != nil {
				return nil, err
			}
			if r.pos >= len(r.b) {
				return nil, obxerr.Corrupted("catalog: truncated storage mode byte")
			}
			modeByte := r.b[r.pos]
			if modeByte > 1 {
				return nil, obxerr.Corrupted("catalog: invalid storage mode byte %d", modeByte)
			}
			t.StorageMode = StorageMode(modeByte)
			r.pos++

			numCols, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			t.Columns = make([]Column, numCols)
			for k := range t.Columns {
				c := &t.Columns[k]
				if c.Name, err = r.str(); err != nil {
					return nil, err
				}
				if c.Type, err = r.str(); err != nil {
					return nil, err
				}
				if c.NotNull, err = r.boolean(); err != nil {
					return nil, err
				}
				if c.HasDefault, err = r.boolean(); err != nil {
					return nil, err
				}
			}
			numPK, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			t.PrimaryKeyColumns = make([]string, numPK)
			for k := range t.PrimaryKeyColumns {
				if t.PrimaryKeyColumns[k], err = r.str(); err != nil {
					return nil, err
				}
			}
		}

		numSeqs, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		db.Sequences = make([]Sequence, numSeqs)
		for j := range db.Sequences {
			s := &db.Sequences[j]
			if s.Name, err = r.str(); err != nil {
				return nil, err
			}
			if s.StartValue, err = r.int64(); err != nil {
				return nil, err
			}
			if s.Increment, err = r.int64(); err != nil {
				return nil, err
			}
			if s.CurrentValue, err = r.int64(); err != nil {
				return nil, err
			}
			if s.MinValue, err = r.int64(); err != nil {
				return nil, err
			}
			if s.MaxValue, err = r.int64(); err != nil {
				return nil, err
			}
		}

		numViews, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		db.Views = make([]View, numViews)
		for j := range db.Views {
			v := &db.Views[j]
			if v.Name, err = r.str(); err != nil {
				return nil, err
			}
			if v.QuerySQL, err = r.str(); err != nil {
				return nil, err
			}
		}

		numMacros, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		db.Macros = make([]Macro, numMacros)
		for j := range db.Macros {
			m := &db.Macros[j]
			if m.Name, err = r.str(); err != nil {
				return nil, err
			}
			numParams, err := r.uvarint()
			if err != nil {
				return nil, err
			}
			m.Parameters = make([]string, numParams)
			for k := range m.Parameters {
				if m.Parameters[k], err = r.str(); err != nil {
					return nil, err
				}
			}
			if m.BodySQL, err = r.str(); err != nil {
				return nil, err
			}
		}

		dbs[i] = db
	}
	return dbs, nil
}
