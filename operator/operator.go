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

// Package operator implements the operator tree of spec.md §4.11: a
// small set of node kinds (scan, match, insert/update/remove, sort,
// group, distinct, aggregate) composed into a tree of at most two
// children per node and driven to completion one Next call at a time.
// Grounded on operator.hpp's operator_t base class (left_/right_
// children, an operator_type/operator_state pair, prepare/on_execute/
// mark_executed/clear), adapted from actor-zeta's async push model to a
// synchronous pull iterator since this engine has no actor runtime to
// ground an async rewrite on.
package operator

import "github.com/obxdb/obx/value"

// Type identifies an operator's role in the tree, mirroring
// operator.hpp's operator_type enum. Values not needed by this engine
// (transfer_scan, primary_key_scan, join, raw_data) are omitted; the
// remainder keep the original names.
type Type uint8

const (
	TypeEmpty Type = iota
	TypeMatch
	TypeFullScan
	TypeIndexScan
	TypeInsert
	TypeRemove
	TypeUpdate
	TypeSort
	TypeAggregate
	TypeGroup
	TypeDistinct
	TypeLimit
)

func (t Type) String() string {
	switch t {
	case TypeEmpty:
		return "empty"
	case TypeMatch:
		return "match"
	case TypeFullScan:
		return "full_scan"
	case TypeIndexScan:
		return "index_scan"
	case TypeInsert:
		return "insert"
	case TypeRemove:
		return "remove"
	case TypeUpdate:
		return "update"
	case TypeSort:
		return "sort"
	case TypeAggregate:
		return "aggregate"
	case TypeGroup:
		return "group"
	case TypeDistinct:
		return "distinct"
	case TypeLimit:
		return "limit"
	default:
		return "unknown"
	}
}

// State tracks an operator's lifecycle, mirroring operator_state.
type State uint8

const (
	StateCreated State = iota
	StateRunning
	StateExecuted
	StateCleared
)

// Node is the operator tree's common surface. Every concrete operator
// (Scan, Match, Insert, ...) embeds *Base and implements Next, which
// pulls the next output chunk from the node (or nil, false at
// exhaustion). A node with no children is a leaf (a scan); a node with
// one child transforms its child's output (match, sort, group,
// distinct, limit); join is not implemented (spec.md's data model has
// no multi-table join operator).
type Node interface {
	Base() *Base
	// Next returns the next chunk of output, or (nil, false) once the
	// node is exhausted.
	Next() (*value.Chunk, bool, error)
}

// Base holds the fields every operator shares, mirroring operator_t's
// left_/right_/state_/type_ fields.
type Base struct {
	typ   Type
	left  Node
	right Node
	state State
}

// NewBase constructs the shared fields for a concrete operator of the
// given type.
func NewBase(t Type) *Base {
	return &Base{typ: t, state: StateCreated}
}

// Base satisfies Node's Base() method for every concrete operator that
// embeds *Base, so each operator only needs to implement Next.
func (b *Base) Base() *Base  { return b }
func (b *Base) Type() Type   { return b.typ }
func (b *Base) State() State { return b.state }
func (b *Base) Left() Node   { return b.left }
func (b *Base) Right() Node  { return b.right }

// SetChildren attaches this node's children, mirroring set_children.
// right may be nil; every concrete operator in this package uses at
// most one child, but the two-child shape is kept for fidelity with
// the source tree and to leave room for a future join operator.
func (b *Base) SetChildren(left, right Node) {
	b.left = left
	b.right = right
}

// Prepare transitions a freshly constructed tree into the running
// state. It is idempotent.
func (b *Base) Prepare() {
	if b.state == StateCreated {
		b.state = StateRunning
	}
}

// MarkExecuted transitions the node to executed once its child stream
// is exhausted.
func (b *Base) MarkExecuted() { b.state = StateExecuted }

// Clear resets the node to its initial state so the tree can be
// re-driven (e.g. a prepared statement re-executed with new
// parameters).
func (b *Base) Clear() {
	b.state = StateCreated
}

// IsExecuted reports whether the node has finished producing output.
func (b *Base) IsExecuted() bool { return b.state == StateExecuted }

// Drain pulls every remaining chunk from n, concatenating rows into one
// chunk's worth of per-column vectors is not attempted here since
// vector capacity is fixed at construction; callers that need a single
// materialized result should collect chunks themselves. Drain exists
// for tests and for operators (sort, aggregate) that must buffer their
// entire input before producing output.
func Drain(n Node) ([]*value.Chunk, error) {
	var out []*value.Chunk
	for {
		chunk, ok, err := n.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, chunk)
	}
}
