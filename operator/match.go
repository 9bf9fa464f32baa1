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
	"github.com/obxdb/obx/index"
	"github.com/obxdb/obx/value"
)

// Predicate is one compare expression over a single column: column OP
// literal. A row satisfies Predicate when value.Compare(row[Column],
// Literal) matches Op the same way index.CompareOp matches a B+tree
// range query (spec.md §4.10's six-op table) — reusing index.CompareOp
// here keeps the two places in the engine that compare values agreeing
// on what "greater than" means for every logical type.
type Predicate struct {
	Column  int
	Op      index.CompareOp
	Literal value.Value
}

// satisfies reports whether v matches p, treating NULL as never
// matching (three-valued SQL comparison semantics: NULL compared to
// anything is unknown, which match.go rounds down to false).
func (p Predicate) satisfies(v value.Value) bool {
	if v.IsNull() || p.Literal.IsNull() {
		return false
	}
	c := value.Compare(v, p.Literal)
	switch p.Op {
	case index.Eq:
		return c == 0
	case index.Ne:
		return c != 0
	case index.Gt:
		return c > 0
	case index.Lt:
		return c < 0
	case index.Gte:
		return c >= 0
	case index.Lte:
		return c <= 0
	default:
		return false
	}
}

// Match is the filter operator (operator_type.match): it prunes its
// child's output to the rows satisfying every predicate in an implicit
// AND (spec.md §4.11 names match as the operator that "prunes rows
// using compare expressions"; no surviving source names a richer
// boolean-expression tree, so conjunction of column/op/literal
// predicates is as far as this operator goes — a disjunction or nested
// boolean tree would need its own expression package this retrieval
// pack gives no grounding for).
type Match struct {
	*Base
	child      Node
	predicates []Predicate
}

// NewMatch builds a filter operator requiring every predicate to hold.
func NewMatch(child Node, predicates []Predicate) *Match {
	return &Match{Base: NewBase(TypeMatch), child: child, predicates: predicates}
}

func (m *Match) Next() (*value.Chunk, bool, error) {
	m.Prepare()
	for {
		chunk, ok, err := m.child.Next()
		if err != nil {
			return nil, false, err
		}
		if !ok {
			m.MarkExecuted()
			return nil, false, nil
		}
		filtered := filterChunk(chunk, func(row []value.Value) bool {
			for _, p := range m.predicates {
				if !p.satisfies(row[p.Column]) {
					return false
				}
			}
			return true
		})
		if filtered.Cardinality() > 0 {
			return filtered, true, nil
		}
		// This chunk had no surviving rows; pull the next one instead of
		// returning an empty chunk, so callers never have to distinguish
		// "empty but more coming" from "exhausted".
	}
}

// filterChunk builds a new chunk containing only the rows of chunk for
// which keep returns true.
func filterChunk(chunk *value.Chunk, keep func(row []value.Value) bool) *value.Chunk {
	n := chunk.Cardinality()
	vectors := make([]*value.Vector, len(chunk.Columns))
	for i, col := range chunk.Columns {
		vectors[i] = value.NewVector(col.Type, n)
	}
	for i := 0; i < n; i++ {
		row := chunk.Row(i)
		if !keep(row) {
			continue
		}
		for ci, v := range row {
			vectors[ci].Append(v)
		}
	}
	out, _ := value.NewChunk(vectors)
	return out
}
