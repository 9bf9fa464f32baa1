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

package txn

import "testing"

func TestBeginCommit(t *testing.T) {
	mgr := NewManager()
	session := NewSessionID()

	txn := mgr.BeginTransaction(session)
	if !txn.IsActive() || txn.IsCommitted() || txn.IsAborted() {
		t.Fatalf("fresh transaction should be active only")
	}
	if txn.ID() < TransactionIDStart {
		t.Fatalf("transaction id %d below TransactionIDStart", txn.ID())
	}
	if txn.Session() != session {
		t.Fatalf("transaction session mismatch")
	}

	commitID := mgr.Commit(session)
	if commitID == 0 {
		t.Fatalf("commit id should be nonzero")
	}
	if mgr.HasActiveTransaction(session) {
		t.Fatalf("session should have no active transaction after commit")
	}
}

func TestBeginAbort(t *testing.T) {
	mgr := NewManager()
	session := NewSessionID()

	txn := mgr.BeginTransaction(session)
	if !txn.IsActive() {
		t.Fatalf("transaction should be active")
	}
	mgr.Abort(session)
	if mgr.HasActiveTransaction(session) {
		t.Fatalf("session should have no active transaction after abort")
	}
	if !txn.IsAborted() {
		t.Fatalf("transaction should be marked aborted")
	}
}

func TestTwoSessionsIndependent(t *testing.T) {
	mgr := NewManager()
	s1, s2 := NewSessionID(), NewSessionID()

	txn1 := mgr.BeginTransaction(s1)
	txn2 := mgr.BeginTransaction(s2)

	if txn1.ID() == txn2.ID() {
		t.Fatalf("independent sessions got the same transaction id")
	}
	if txn1.StartTime() == txn2.StartTime() {
		t.Fatalf("independent sessions got the same start time")
	}
	if !mgr.HasActiveTransactions() {
		t.Fatalf("manager should report active transactions")
	}

	mgr.Commit(s1)
	if !mgr.HasActiveTransaction(s2) {
		t.Fatalf("s2 should still be active")
	}
	if mgr.HasActiveTransaction(s1) {
		t.Fatalf("s1 should no longer be active")
	}

	mgr.Commit(s2)
	if mgr.HasActiveTransactions() {
		t.Fatalf("no transaction should remain active")
	}
}

func TestFindTransaction(t *testing.T) {
	mgr := NewManager()
	session, missing := NewSessionID(), NewSessionID()

	mgr.BeginTransaction(session)
	if mgr.FindTransaction(session) == nil {
		t.Fatalf("FindTransaction should find the registered session")
	}
	if mgr.FindTransaction(missing) != nil {
		t.Fatalf("FindTransaction should not find an unregistered session")
	}

	mgr.Commit(session)
	if mgr.FindTransaction(session) != nil {
		t.Fatalf("FindTransaction should not find a committed session")
	}
}

func TestLowestActiveStartTime(t *testing.T) {
	mgr := NewManager()

	s1 := NewSessionID()
	txn1 := mgr.BeginTransaction(s1)
	t1 := txn1.StartTime()
	if got := mgr.LowestActiveStartTime(); got != t1 {
		t.Fatalf("LowestActiveStartTime = %d, want %d", got, t1)
	}

	s2 := NewSessionID()
	mgr.BeginTransaction(s2)
	if got := mgr.LowestActiveStartTime(); got != t1 {
		t.Fatalf("LowestActiveStartTime with two active txns = %d, want %d", got, t1)
	}

	mgr.Commit(s1)
	if got := mgr.LowestActiveStartTime(); got <= t1 {
		t.Fatalf("LowestActiveStartTime after committing s1 = %d, want > %d", got, t1)
	}
}

// TestTransactionIDMonotonicity is spec.md §8 testable property 8's
// transaction_id half.
func TestTransactionIDMonotonicity(t *testing.T) {
	mgr := NewManager()
	var prevID uint64

	for i := 0; i < 10; i++ {
		session := NewSessionID()
		txn := mgr.BeginTransaction(session)
		if txn.ID() <= prevID {
			t.Fatalf("transaction id %d did not increase past %d", txn.ID(), prevID)
		}
		prevID = txn.ID()
		mgr.Commit(session)
	}
}

// TestCommitIDMonotonicity is spec.md §8 testable property 8's commit_id
// half.
func TestCommitIDMonotonicity(t *testing.T) {
	mgr := NewManager()
	var prevCommit uint64

	for i := 0; i < 10; i++ {
		session := NewSessionID()
		mgr.BeginTransaction(session)
		commitID := mgr.Commit(session)
		if commitID <= prevCommit {
			t.Fatalf("commit id %d did not increase past %d", commitID, prevCommit)
		}
		prevCommit = commitID
	}
}

func TestAppendTracking(t *testing.T) {
	mgr := NewManager()
	session := NewSessionID()
	txn := mgr.BeginTransaction(session)

	txn.AddAppend(0, 100)
	txn.AddAppend(100, 50)

	appends := txn.Appends()
	if len(appends) != 2 {
		t.Fatalf("len(Appends()) = %d, want 2", len(appends))
	}
	if appends[0] != (AppendInfo{RowStart: 0, Count: 100}) {
		t.Fatalf("appends[0] = %+v", appends[0])
	}
	if appends[1] != (AppendInfo{RowStart: 100, Count: 50}) {
		t.Fatalf("appends[1] = %+v", appends[1])
	}

	mgr.Commit(session)
}
