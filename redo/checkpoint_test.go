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

// memCheckpointStore is an in-memory CheckpointStore stand-in so these
// tests never touch the filesystem or network backends.
type memCheckpointStore struct {
	saved []Checkpoint
}

func (s *memCheckpointStore) SaveCheckpoint(cp Checkpoint) error {
	s.saved = append(s.saved, cp)
	return nil
}

func (s *memCheckpointStore) LoadCheckpoint() (Checkpoint, bool, error) {
	if len(s.saved) == 0 {
		return Checkpoint{}, false, nil
	}
	return s.saved[len(s.saved)-1], true, nil
}

func TestCheckpointFlushBoundaryRespectsOldestActive(t *testing.T) {
	store := &memCheckpointStore{}
	cc := NewCheckpointCoordinator(store)

	xidA := Xid{Sequence: 1}
	xidB := Xid{Sequence: 2}
	xidC := Xid{Sequence: 3}

	cc.TrackBegin(xidA, Scn(10))
	cc.TrackBegin(xidB, Scn(20))
	cc.TrackBegin(xidC, Scn(30))

	// A commits at scn 15. The flush boundary is the oldest *active*
	// first-seen scn, which is 20 (B) once A commits, so A flushes.
	cc.TrackCommit(xidA, Scn(15), nil)

	drained := cc.FlushBoundary(1, Scn(15))
	if len(drained) != 1 || drained[0].xid != xidA {
		t.Fatalf("expected xidA to flush once it is the only pending-commit entry below the active watermark, got %+v", drained)
	}

	// B commits at scn 25, below C's first-seen scn (30), the oldest still
	// open, so it drains.
	cc.TrackCommit(xidB, Scn(25), nil)
	drained = cc.FlushBoundary(2, Scn(25))
	if len(drained) != 1 || drained[0].xid != xidB {
		t.Fatalf("expected xidB to flush (commitScn 25 < oldest active scn 30), got %+v", drained)
	}

	// Nothing left pending; an empty drain is valid.
	if drained := cc.FlushBoundary(3, Scn(25)); len(drained) != 0 {
		t.Fatalf("expected no further entries to drain, got %+v", drained)
	}
}

func TestCheckpointFlushBoundaryHoldsBackCommitAboveActiveFloor(t *testing.T) {
	store := &memCheckpointStore{}
	cc := NewCheckpointCoordinator(store)

	open := Xid{Sequence: 1}
	committer := Xid{Sequence: 2}

	cc.TrackBegin(open, Scn(5))
	cc.TrackBegin(committer, Scn(6))
	cc.TrackCommit(committer, Scn(50), nil)

	// open's first-seen scn (5) is still the floor; committer's commit
	// scn (50) is not below it, so nothing may flush yet.
	drained := cc.FlushBoundary(1, Scn(50))
	if len(drained) != 0 {
		t.Fatalf("expected the pending commit to be held back by the still-open transaction, got %+v", drained)
	}

	cc.TrackRollback(open)
	drained = cc.FlushBoundary(2, Scn(50))
	if len(drained) != 1 || drained[0].xid != committer {
		t.Fatalf("expected committer to flush once the blocking transaction rolled back, got %+v", drained)
	}
}

func TestCheckpointPersistWritesWatermarkAndOldestActive(t *testing.T) {
	store := &memCheckpointStore{}
	cc := NewCheckpointCoordinator(store)

	stillOpen := Xid{Sequence: 7}
	cc.TrackBegin(stillOpen, Scn(1))
	cc.TrackBegin(Xid{Sequence: 8}, Scn(2))
	cc.TrackCommit(Xid{Sequence: 8}, Scn(9), nil)
	cc.FlushBoundary(1, Scn(9))

	if err := cc.Persist(1234, Scn(9), 99); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if len(store.saved) != 1 {
		t.Fatalf("expected one saved checkpoint, got %d", len(store.saved))
	}
	cp := store.saved[0]
	if cp.MinActiveXid != stillOpen {
		t.Fatalf("MinActiveXid = %+v, want %+v", cp.MinActiveXid, stillOpen)
	}
	if cp.FileOffset != 1234 {
		t.Fatalf("FileOffset = %d, want 1234", cp.FileOffset)
	}
}
