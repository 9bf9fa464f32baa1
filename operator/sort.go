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

package operator

import (
	"sort"

	"github.com/obxdb/obx/value"
)

// SortKey orders rows by Column, descending when Desc.
type SortKey struct {
	Column int
	Desc   bool
}

// Sort is the sort operator (operator_type.sort): it buffers its
// child's entire output and reorders it by Keys, applied in order
// (the first key breaks ties with the second, and so on — standard
// multi-key ORDER BY semantics). It produces its result as a single
// chunk, since a stable multi-key sort needs every row present before
// any can be emitted.
type Sort struct {
	*Base
	child Node
	keys  []SortKey
	done  bool
}

// NewSort builds a sort operator over child ordered by keys.
func NewSort(child Node, keys []SortKey) *Sort {
	return &Sort{Base: NewBase(TypeSort), child: child, keys: keys}
}

func (s *Sort) Next() (*value.Chunk, bool, error) {
	s.Prepare()
	if s.done {
		return nil, false, nil
	}
	s.done = true
	s.MarkExecuted()

	chunks, err := Drain(s.child)
	if err != nil {
		return nil, false, err
	}
	if len(chunks) == 0 {
		return nil, false, nil
	}

	colTypes := make([]value.LogicalType, len(chunks[0].Columns))
	for i, c := range chunks[0].Columns {
		colTypes[i] = c.Type
	}

	var rows [][]value.Value
	for _, chunk := range chunks {
		for r := 0; r < chunk.Cardinality(); r++ {
			rows = append(rows, chunk.Row(r))
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range s.keys {
			a, b := rows[i][k.Column], rows[j][k.Column]
			switch {
			case a.IsNull() && b.IsNull():
				continue
			case a.IsNull():
				return !k.Desc
			case b.IsNull():
				return k.Desc
			}
			c := value.Compare(a, b)
			if c == 0 {
				continue
			}
			if k.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})

	vectors := make([]*value.Vector, len(colTypes))
	for i, t := range colTypes {
		vectors[i] = value.NewVector(t, len(rows))
	}
	for _, row := range rows {
		for i, v := range row {
			vectors[i].Append(v)
		}
	}
	chunk, err := value.NewChunk(vectors)
	if err != nil {
		return nil, false, err
	}
	return chunk, true, nil
}
