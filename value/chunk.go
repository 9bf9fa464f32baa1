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

package value

import "fmt"

// Chunk is an ordered set of Vectors sharing one cardinality, per
// spec.md §3. It is the unit operators pass between each other (a scan
// produces chunks, an insert consumes them, the WAL writer frames one
// per PHYSICAL_INSERT/PHYSICAL_UPDATE record).
type Chunk struct {
	Columns []*Vector
}

// NewChunk builds a Chunk from columns, which must all share the same
// Len(). It returns an error instead of panicking since chunk assembly
// happens at operator boundaries where malformed input should be
// reported, not crash the process (spec.md §7: "protocol violations ...
// raise a fatal condition at the boundary" — here the boundary is the
// caller, who gets an ordinary error to propagate).
func NewChunk(columns []*Vector) (*Chunk, error) {
	if len(columns) == 0 {
		return &Chunk{}, nil
	}
	card := columns[0].Len()
	for i, c := range columns {
		if c.Len() != card {
			return nil, fmt.Errorf("value: NewChunk: column %d has cardinality %d, want %d", i, c.Len(), card)
		}
	}
	return &Chunk{Columns: columns}, nil
}

// Cardinality returns the number of rows in the chunk.
func (c *Chunk) Cardinality() int {
	if len(c.Columns) == 0 {
		return 0
	}
	return c.Columns[0].Len()
}

// Row materializes row i across all columns, in column order.
func (c *Chunk) Row(i int) []Value {
	out := make([]Value, len(c.Columns))
	for j, col := range c.Columns {
		out[j] = col.Get(i)
	}
	return out
}
