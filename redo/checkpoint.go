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

import (
	"container/heap"

	"github.com/google/btree"
)

// activeTxEntry is one min-heap slot: a transaction ordered by its
// first-seen SCN. The Checkpoint Coordinator may never advance its
// watermark past the smallest first-seen SCN among transactions still
// open, since that transaction could still commit at any SCN >= it.
type activeTxEntry struct {
	xid  Xid
	scn  Scn
	index int
}

// activeTxHeap implements container/heap.Interface the same way the
// teacher's CacheManager orders softItems by effectiveTime, generalized
// from LRU eviction order to SCN order.
type activeTxHeap []*activeTxEntry

func (h activeTxHeap) Len() int { return len(h) }
func (h activeTxHeap) Less(i, j int) bool { return h[i].scn.Compare(h[j].scn) < 0 }
func (h activeTxHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *activeTxHeap) Push(x any) {
	e := x.(*activeTxEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *activeTxHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// flushedItem is one committed transaction waiting to be handed to the
// Emitter, indexed by CommitScn so a checkpoint flush can range-scan
// "everything at or below this SCN" even when LWNs arrive slightly out of
// order (late-arriving smaller-SCN commit after a larger one already
// indexed) — the teacher has no direct analog for this; grounded instead
// on google/btree's own ordered-set use case, adopted as a pack dependency
// with no other consumer in this module.
type flushedItem struct {
	commitScn Scn
	xid       Xid
	changes   []*Change
}

func (f *flushedItem) Less(than btree.Item) bool {
	o := than.(*flushedItem)
	if f.commitScn != o.commitScn {
		return f.commitScn < o.commitScn
	}
	return f.xid.Pack() < o.xid.Pack()
}

// CheckpointCoordinator tracks the oldest open transaction's SCN (via
// activeTxHeap) and a pending-flush index of committed-but-unflushed
// transactions (via a btree ordered by CommitScn), advancing the
// persisted watermark only up to the point both agree is safe.
type CheckpointCoordinator struct {
	heap     activeTxHeap
	entries  map[Xid]*activeTxEntry
	pending  *btree.BTree
	watermark Scn
	store    CheckpointStore
	lwnSeq   uint32

	showIncomplete bool
	onWarning      func(*DecoderError)
}

// CheckpointStore is the persistence boundary (redo/checkpointstore/*).
type CheckpointStore interface {
	SaveCheckpoint(cp Checkpoint) error
	LoadCheckpoint() (Checkpoint, bool, error)
}

func NewCheckpointCoordinator(store CheckpointStore) *CheckpointCoordinator {
	return &CheckpointCoordinator{
		entries:   make(map[Xid]*activeTxEntry),
		pending:   btree.New(32),
		store:     store,
		watermark: ScnNone,
	}
}

// TrackBegin registers a transaction's first-seen SCN in the min-heap.
// No-op if xid is already tracked (the 5.2 begin vector and the first 5.1
// undo vector of a transaction can race for which sees it first).
func (c *CheckpointCoordinator) TrackBegin(xid Xid, scn Scn) {
	if _, ok := c.entries[xid]; ok {
		return
	}
	e := &activeTxEntry{xid: xid, scn: scn}
	c.entries[xid] = e
	heap.Push(&c.heap, e)
}

// Configure installs the show-incomplete-transactions behavior
// (redo/config.go's Config.ShowIncompleteTransactions) and the warning
// sink TrackCommit uses when a commit marker names an xid this
// coordinator never saw begin — routine at stream startup, when the
// first records read are mid-transaction.
func (c *CheckpointCoordinator) Configure(showIncomplete bool, onWarning func(*DecoderError)) {
	c.showIncomplete = showIncomplete
	c.onWarning = onWarning
}

// TrackCommit moves a transaction from the active heap to the pending
// flush index, keyed by commitScn. Per spec.md §4.7, a commit for an xid
// never tracked as begun is warned about and dropped unless
// ShowIncompleteTransactions opts into emitting it anyway from nothing
// but its commit marker.
func (c *CheckpointCoordinator) TrackCommit(xid Xid, commitScn Scn, changes []*Change) {
	e, began := c.entries[xid]
	if began {
		heap.Remove(&c.heap, e.index)
		delete(c.entries, xid)
	} else if !c.showIncomplete {
		if c.onWarning != nil {
			c.onWarning(IncompleteTxnErr(xid, commitScn))
		}
		return
	}
	c.pending.ReplaceOrInsert(&flushedItem{commitScn: commitScn, xid: xid, changes: changes})
}

// TrackRollback removes a rolled-back transaction from the active heap
// without ever adding it to the pending flush index — nothing it
// buffered is emitted.
func (c *CheckpointCoordinator) TrackRollback(xid Xid) {
	if e, ok := c.entries[xid]; ok {
		heap.Remove(&c.heap, e.index)
		delete(c.entries, xid)
	}
}

// oldestActiveScn returns the smallest first-seen SCN still open, or
// ScnNone if no transaction is active.
func (c *CheckpointCoordinator) oldestActiveScn() Scn {
	if c.heap.Len() == 0 {
		return ScnNone
	}
	return c.heap[0].scn
}

// FlushBoundary is called at every LWN boundary (RecordFramer.Lwn reset).
// It drains every pending-flush entry whose CommitScn is strictly below
// the oldest still-active transaction's first-seen SCN (or everything, if
// no transaction remains open) and returns them in ascending CommitScn
// order for the Emitter to hand to the Builder.
func (c *CheckpointCoordinator) FlushBoundary(lwnSeq uint32, lwnScn Scn) []flushedItem {
	boundary := c.oldestActiveScn()
	var drained []flushedItem
	var toDelete []btree.Item
	iter := func(item btree.Item) bool {
		fi := item.(*flushedItem)
		if !boundary.IsNone() && fi.commitScn.Compare(boundary) >= 0 {
			return false
		}
		drained = append(drained, *fi)
		toDelete = append(toDelete, item)
		return true
	}
	c.pending.Ascend(iter)
	for _, item := range toDelete {
		c.pending.Delete(item)
	}
	if len(drained) > 0 {
		c.lwnSeq = lwnSeq
		c.watermark = drained[len(drained)-1].commitScn
	}
	return drained
}

// Watermark returns the highest CommitScn flushed so far.
func (c *CheckpointCoordinator) Watermark() Scn { return c.watermark }

// Persist writes the current watermark plus the oldest still-active
// transaction (the resume point on restart) through the configured
// CheckpointStore.
func (c *CheckpointCoordinator) Persist(fileOffset uint64, schemaScn Scn, timestamp uint32) error {
	cp := Checkpoint{
		Sequence:     c.lwnSeq,
		ScnWatermark: c.watermark,
		FileOffset:   fileOffset,
		Timestamp:    timestamp,
		SchemaScn:    schemaScn,
	}
	if c.heap.Len() > 0 {
		oldest := c.heap[0]
		cp.MinActiveXid = oldest.xid
	} else {
		cp.MinActiveXid = XidNone
	}
	return c.store.SaveCheckpoint(cp)
}
