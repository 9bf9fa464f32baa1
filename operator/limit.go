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

// Limit caps the number of rows its child yields to N, the last stage of
// the aggregate pipeline named in spec.md §4.11 ("... → distinct →
// limit"). It counts rows across chunk boundaries and truncates the
// final chunk rather than buffering, so a large limit over a small
// input still streams.
type Limit struct {
	*Base
	child   Node
	n       int
	emitted int
}

// NewLimit builds a limit operator capping child's output at n rows.
func NewLimit(child Node, n int) *Limit {
	return &Limit{Base: NewBase(TypeLimit), child: child, n: n}
}

func (l *Limit) Next() (*value.Chunk, bool, error) {
	l.Prepare()
	if l.emitted >= l.n {
		l.MarkExecuted()
		return nil, false, nil
	}
	chunk, ok, err := l.child.Next()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		l.MarkExecuted()
		return nil, false, nil
	}
	remaining := l.n - l.emitted
	if chunk.Cardinality() <= remaining {
		l.emitted += chunk.Cardinality()
		return chunk, true, nil
	}
	truncated := filterChunk(chunk, func(row []value.Value) bool {
		if remaining <= 0 {
			return false
		}
		remaining--
		return true
	})
	l.emitted = l.n
	return truncated, true, nil
}
