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

// Package txn implements spec.md §4.7's transaction manager: one active
// transaction per session, a monotonic transaction ID and timestamp
// counter shared for both start times and commit IDs, and the
// lowest-active-start-time watermark storage/table.DataTable.Vacuum
// relies on for tombstone GC. Grounded nearly 1:1 on
// _examples/original_source/components/table/transaction_manager.cpp/.hpp.
package txn

import (
	"sync"

	"github.com/google/uuid"
)

// SessionID identifies one client session. Sessions are created by the
// engine's connection layer and are opaque to the transaction manager;
// google/uuid gives them a collision-free identity without a central
// allocator, the same role session::session_id_t::generate_uid() plays
// in the original.
type SessionID = uuid.UUID

// NewSessionID allocates a fresh session identity.
func NewSessionID() SessionID { return uuid.New() }

// TransactionIDStart is the first transaction ID ever handed out. The
// original's TRANSACTION_ID_START constant is referenced but not defined
// in the retrieval pack; this value (documented in DESIGN.md) keeps
// transaction IDs well clear of the small integers used elsewhere in
// tests and error messages, matching the spirit of reserving a
// dedicated ID range for transient (not-yet-committed) data.
const TransactionIDStart = 1 << 48

// AppendInfo records one append performed by a transaction: the global
// row range it created. Transaction.Appends() feeds
// storage/table.DataTable.FinalizeAppend once the transaction commits.
type AppendInfo struct {
	RowStart uint64
	Count    uint64
}

// Transaction is one in-flight (or just-finished) unit of work, per
// spec.md §4.7. Grounded on transaction.cpp/.hpp.
type Transaction struct {
	mu sync.Mutex

	id        uint64
	startTime uint64
	session   SessionID
	commitID  uint64
	committed bool
	aborted   bool
	appends   []AppendInfo
}

// ID returns the transaction's unique, monotonically assigned ID.
func (t *Transaction) ID() uint64 { return t.id }

// StartTime returns the timestamp at which the transaction began; this
// is also the read-visibility horizon used by storage/table.Visible for
// operations performed within the transaction.
func (t *Transaction) StartTime() uint64 { return t.startTime }

// Session returns the owning session.
func (t *Transaction) Session() SessionID { return t.session }

// CommitID returns the commit timestamp once committed, or 0 before
// commit.
func (t *Transaction) CommitID() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitID
}

// IsActive reports whether the transaction has neither committed nor
// aborted.
func (t *Transaction) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.committed && !t.aborted
}

// IsCommitted reports whether Manager.Commit has finalized this transaction.
func (t *Transaction) IsCommitted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.committed
}

// IsAborted reports whether Manager.Abort finalized this transaction.
func (t *Transaction) IsAborted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.aborted
}

// AddAppend records one append_info entry, in order.
func (t *Transaction) AddAppend(rowStart, count uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appends = append(t.appends, AppendInfo{RowStart: rowStart, Count: count})
}

// Appends returns a copy of the transaction's recorded append ranges.
func (t *Transaction) Appends() []AppendInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]AppendInfo(nil), t.appends...)
}

// finalizeCommit atomically assigns the commit ID and marks the
// transaction committed, under the same lock IsActive/IsCommitted/
// CommitID read through, so a concurrent reader never observes a
// half-finalized transaction.
func (t *Transaction) finalizeCommit(commitID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commitID = commitID
	t.committed = true
}

func (t *Transaction) finalizeAbort() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aborted = true
}

// Manager is the table-wide (or database-wide) transaction coordinator:
// one active transaction per session, a monotonic transaction-ID
// counter, a separate timestamp counter shared by start times and commit
// IDs, and the active-start-time watermark used for tombstone GC.
// Grounded 1:1 on transaction_manager_t.
type Manager struct {
	mu sync.Mutex

	nextTransactionID uint64
	currentTimestamp  uint64

	active           map[SessionID]*Transaction
	activeStartTimes map[uint64]struct{}
}

// NewManager returns an empty transaction manager.
func NewManager() *Manager {
	return &Manager{
		nextTransactionID: TransactionIDStart,
		currentTimestamp:  1,
		active:            make(map[SessionID]*Transaction),
		activeStartTimes:  make(map[uint64]struct{}),
	}
}

// BeginTransaction returns session's existing active transaction if one
// exists; otherwise it creates one with a fresh (transaction ID, start
// time) pair and registers the start time in the active set.
func (m *Manager) BeginTransaction(session SessionID) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	if txn, ok := m.active[session]; ok {
		return txn
	}
	id := m.nextTransactionID
	m.nextTransactionID++
	startTime := m.currentTimestamp
	m.currentTimestamp++
	txn := &Transaction{id: id, startTime: startTime, session: session}
	m.active[session] = txn
	m.activeStartTimes[startTime] = struct{}{}
	return txn
}

// Commit assigns the next timestamp as session's transaction's commit
// ID, marks it committed, and removes it from the active set. Commit is
// idempotent for a session with no active transaction, returning 0.
func (m *Manager) Commit(session SessionID) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.active[session]
	if !ok {
		return 0
	}
	commitID := m.currentTimestamp
	m.currentTimestamp++
	txn.finalizeCommit(commitID)
	delete(m.activeStartTimes, txn.startTime)
	delete(m.active, session)
	return commitID
}

// Abort marks session's active transaction aborted and removes it from
// the active set. It is a no-op if session has no active transaction.
func (m *Manager) Abort(session SessionID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	txn, ok := m.active[session]
	if !ok {
		return
	}
	txn.finalizeAbort()
	delete(m.activeStartTimes, txn.startTime)
	delete(m.active, session)
}

// FindTransaction returns session's active transaction, or nil.
func (m *Manager) FindTransaction(session SessionID) *Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[session]
}

// HasActiveTransaction reports whether session currently has an active
// transaction.
func (m *Manager) HasActiveTransaction(session SessionID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.active[session]
	return ok
}

// HasActiveTransactions reports whether any session has an active
// transaction.
func (m *Manager) HasActiveTransactions() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active) > 0
}

// LowestActiveStartTime returns the smallest start time among active
// transactions, or the current timestamp if none are active. This is the
// GC watermark: storage/table row version managers may discard tombstone
// bookkeeping for any commit ID at or below this value, since no active
// reader's snapshot can precede it.
func (m *Manager) LowestActiveStartTime() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.activeStartTimes) == 0 {
		return m.currentTimestamp
	}
	min := ^uint64(0)
	for t := range m.activeStartTimes {
		if t < min {
			min = t
		}
	}
	return min
}
