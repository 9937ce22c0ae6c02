/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package redo

import "testing"

func TestTxBufferBeginThenChangeThenCommit(t *testing.T) {
	b := NewTxBuffer()
	xid := Xid{Usn: 1, Slot: 2, Sequence: 3}
	b.Begin(TxnBeginVector{Xid: xid, Obj: 42}, Scn(100))

	ch := &Change{Op: OpInsert, Obj: 42, Bdba: 7, Slot: 1,
		ColumnImages: []ColumnImage{{ColNum: 0, Raw: []byte("hello")}}}
	b.AddChange(xid, ch, Scn(100))

	if got := b.ActiveCount(); got != 1 {
		t.Fatalf("ActiveCount = %d, want 1", got)
	}

	tx, ok := b.Commit(xid, Scn(150))
	if !ok {
		t.Fatalf("Commit reported no matching transaction")
	}
	if len(tx.Changes) != 1 {
		t.Fatalf("committed transaction has %d changes, want 1", len(tx.Changes))
	}
	if string(tx.Changes[0].ColumnImages[0].Raw) != "hello" {
		t.Fatalf("column bytes not retained through arena copy")
	}
	if b.ActiveCount() != 0 {
		t.Fatalf("transaction must leave the active map after commit")
	}
}

// TestTxBufferAddChangeCopiesOutOfCallerBuffer verifies the arena-copy
// contract redo/vector.go documents: a Change's backing bytes must
// survive the caller mutating its original buffer afterwards (standing
// in for the Record Framer reusing its merge buffer on the next Next()).
func TestTxBufferAddChangeCopiesOutOfCallerBuffer(t *testing.T) {
	b := NewTxBuffer()
	xid := Xid{Usn: 9, Slot: 9, Sequence: 9}
	raw := []byte("original")
	ch := &Change{Op: OpUpdate, ColumnImages: []ColumnImage{{Raw: raw}}}
	b.AddChange(xid, ch, Scn(1))

	for i := range raw {
		raw[i] = 'X'
	}

	tx, ok := b.Commit(xid, Scn(2))
	if !ok {
		t.Fatalf("commit failed")
	}
	if string(tx.Changes[0].ColumnImages[0].Raw) != "original" {
		t.Fatalf("retained column bytes were mutated through the caller's buffer: got %q",
			tx.Changes[0].ColumnImages[0].Raw)
	}
}

func TestTxBufferRollbackDiscardsEverything(t *testing.T) {
	b := NewTxBuffer()
	xid := Xid{Usn: 1, Slot: 1, Sequence: 1}
	b.AddChange(xid, &Change{Op: OpInsert}, Scn(10))
	b.Rollback(xid)

	if b.ActiveCount() != 0 {
		t.Fatalf("rollback must remove the transaction from the active map")
	}
	if _, ok := b.Commit(xid, Scn(20)); ok {
		t.Fatalf("a rolled-back transaction must not be committable")
	}
}

func TestTxBufferReplayRollbackMissingKeyWarns(t *testing.T) {
	b := NewTxBuffer()
	var gotWarning *DecoderError
	b.OnWarning(func(e *DecoderError) { gotWarning = e })

	b.ReplayRollback(MatchKeyFor(0xdead, 7, 1, 2, 0x10))

	if gotWarning == nil {
		t.Fatalf("expected a PairingError warning for an unmatched rollback key")
	}
	if gotWarning.Code != ErrRollbackNoMatch {
		t.Fatalf("warning code = %v, want ErrRollbackNoMatch", gotWarning.Code)
	}
}

func TestTxBufferMultiBlockUndoMerge(t *testing.T) {
	b := NewTxBuffer()
	xid := Xid{Usn: 2, Slot: 2, Sequence: 2}

	b.AppendUndoFragment(xid, nil) // touch nothing; tx doesn't exist yet
	b.Begin(TxnBeginVector{Xid: xid}, Scn(5))
	b.AppendUndoFragment(xid, []byte("HEAD-"))
	b.AppendUndoFragment(xid, []byte("TAIL"))

	merged := b.MergeUndo(xid)
	if string(merged) != "HEAD-TAIL" {
		t.Fatalf("MergeUndo = %q, want %q", merged, "HEAD-TAIL")
	}
	if again := b.MergeUndo(xid); again != nil {
		t.Fatalf("MergeUndo must return nil once fragments are drained, got %q", again)
	}
}

func TestTxBufferMinFirstSeenScn(t *testing.T) {
	b := NewTxBuffer()
	if got := b.MinFirstSeenScn(); !got.IsNone() {
		t.Fatalf("MinFirstSeenScn on an empty buffer = %v, want ScnNone", got)
	}
	b.Begin(TxnBeginVector{Xid: Xid{Sequence: 1}}, Scn(100))
	b.Begin(TxnBeginVector{Xid: Xid{Sequence: 2}}, Scn(50))
	if got := b.MinFirstSeenScn(); got != Scn(50) {
		t.Fatalf("MinFirstSeenScn = %v, want 50", got)
	}
}

func TestTxBufferNoteBlockCleanout(t *testing.T) {
	b := NewTxBuffer()
	b.NoteBlockCleanout()
	b.NoteBlockCleanout()
	if b.BlockCleanoutCount != 2 {
		t.Fatalf("BlockCleanoutCount = %d, want 2", b.BlockCleanoutCount)
	}
}
