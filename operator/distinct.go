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

import "github.com/obxdb/obx/value"

// Distinct is the distinct operator (spec.md §4.11: "a distinct
// deduplicates"). It keeps the first occurrence of each row, comparing
// Columns only (all columns, if Columns is empty); rows are streamed
// through chunk by chunk rather than buffered in full, since dedup only
// needs a set of seen keys, not the rows themselves.
type Distinct struct {
	*Base
	child   Node
	columns []int
	seen    map[string]bool
}

// NewDistinct builds a distinct operator over child, comparing columns
// (nil meaning every column).
func NewDistinct(child Node, columns []int) *Distinct {
	return &Distinct{Base: NewBase(TypeDistinct), child: child, columns: columns, seen: make(map[string]bool)}
}

func (d *Distinct) Next() (*value.Chunk, bool, error) {
	d.Prepare()
	for {
		chunk, ok, err := d.child.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			d.MarkExecuted()
			return nil, false, nil
		}

		cols := d.columns
		if len(cols) == 0 {
			cols = make([]int, len(chunk.Columns))
			for i := range cols {
				cols[i] = i
			}
		}
		filtered := filterChunk(chunk, func(row []value.Value) bool {
			key := groupKey(row, cols)
			if d.seen[key] {
				return false
			}
			d.seen[key] = true
			return true
		})
		if filtered.Cardinality() > 0 {
			return filtered, true, nil
		}
	}
}
