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

import "sync"

// Transaction accumulates every Change belonging to one Xid between its
// first-seen redo record and its commit/rollback. Grounded on
// storage/transaction.go's TxContext: an ordered undo-style log plus a
// state field, generalized from row-visibility bookkeeping to "changes
// pending emission".
type Transaction struct {
	Xid          Xid
	FirstSeenScn Scn
	State        TxState
	Changes      []*Change
	arena        *chunkArena
	undoFragments [][]byte // multi-block undo (5.11) accumulation, HEAD..MID..TAIL order
	ParentXid    Xid       // supplemental feature: nested/PL-SQL sub-transaction parent, see SPEC_FULL.md §10
	HasParent    bool

	// pendingUndoKey is the RollbackMatchKey AddUndo just indexed for this
	// xid, not yet paired with a Change. Oracle always emits a row's undo
	// (5.1) vector immediately before its redo (11.x) vector in the same
	// change-vector group, so the next AddChange call for this xid is that
	// undo's pair — see AddChange.
	pendingUndoKey *RollbackMatchKey
}

// TxState mirrors storage/transaction.go's TxActive/TxCommitted/TxAborted
// enum, generalized to a redo transaction's lifecycle.
type TxState uint8

const (
	TxPending TxState = iota
	TxCommitted
	TxRolledBack
)

// TxBuffer is the Transaction Buffer: an Xid-keyed map of in-flight
// transactions plus the pending-rollback index used to pair a partial
// rollback marker with the Change it undoes.
type TxBuffer struct {
	mu           sync.Mutex
	active       map[Xid]*Transaction
	rollbackIdx  map[RollbackMatchKey]*pendingUndo
	onWarning    func(*DecoderError)

	// BlockCleanoutCount counts ITL block-cleanout entries seen (which
	// produce no logical Change), a diagnostic supplemental feature
	// (SPEC_FULL.md §10, item 1).
	BlockCleanoutCount uint64
}

// NoteBlockCleanout increments the block-cleanout diagnostic counter. Call
// this whenever ktbRedo reports BlockCleanout for a row vector.
func (b *TxBuffer) NoteBlockCleanout() {
	b.mu.Lock()
	b.BlockCleanoutCount++
	b.mu.Unlock()
}

type pendingUndo struct {
	xid    Xid
	change *Change
}

func NewTxBuffer() *TxBuffer {
	return &TxBuffer{
		active:      make(map[Xid]*Transaction),
		rollbackIdx: make(map[RollbackMatchKey]*pendingUndo),
	}
}

// OnWarning installs a callback invoked for every recoverable/warning
// error this buffer produces (pairing misses, etc.), mirroring the
// Config.OnErrorContinue hook from redo/config.go.
func (b *TxBuffer) OnWarning(fn func(*DecoderError)) { b.onWarning = fn }

func (b *TxBuffer) warn(err *DecoderError) {
	if b.onWarning != nil {
		b.onWarning(err)
	}
}

// get returns (creating if necessary) the Transaction for xid, recording
// scn as its first-seen SCN the first time it's touched. This is the
// "first-seen SCN" the Checkpoint Coordinator's min-heap orders on.
func (b *TxBuffer) get(xid Xid, scn Scn) *Transaction {
	tx, ok := b.active[xid]
	if !ok {
		tx = &Transaction{Xid: xid, FirstSeenScn: scn, arena: newChunkArena()}
		b.active[xid] = tx
	}
	return tx
}

// Begin records a 5.2 transaction-begin vector.
func (b *TxBuffer) Begin(v TxnBeginVector, scn Scn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.get(v.Xid, scn)
}

// AddUndo folds a decoded 5.1/5.11 undo vector into its transaction. A
// HEAD or MID fragment only appends an empty placeholder to undoFragments
// and is not indexed; a TAIL, a LastBufSplit fragment or a single-block
// record is indexed by RollbackMatchKey for a later partial-rollback
// marker to find. AddUndo does not call MergeUndo and stores no undo
// bytes: fragment bytes reach undoFragments only via AppendUndoFragment.
func (b *TxBuffer) AddUndo(uv UndoVector, scn Scn, dba uint32, slt, rci uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx := b.get(uv.Xid, scn)
	if uv.HasParent {
		tx.ParentXid = uv.ParentXid
		tx.HasParent = true
	}

	if uv.Undo == nil {
		return
	}
	payload := make([]byte, 0) // opcode.go's ktub carries no variable body itself;
	// the variable undo bytes live in the vector's later fields, merged by the caller.
	_ = payload

	switch {
	case uv.BufferHead || uv.BufferMid:
		tx.undoFragments = append(tx.undoFragments, nil)
		return
	case uv.BufferTail || uv.LastBufSplit:
		// tail of a split: the caller already appended intermediate
		// fragments via AppendUndoFragment; nothing further to buffer.
	}

	key := MatchKeyFor(uv.Uba, dba, slt, rci, uv.Undo.Flg)
	b.rollbackIdx[key] = &pendingUndo{xid: uv.Xid, change: nil}
	tx.pendingUndoKey = &key
}

// AppendUndoFragment appends one raw undo-record fragment (HEAD, MID, or
// TAIL) for xid, in wire order. Call MergeUndo once the TAIL fragment
// (FlgLastBufferSplit) has been appended.
func (b *TxBuffer) AppendUndoFragment(xid Xid, raw []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.active[xid]
	if !ok {
		return
	}
	tx.undoFragments = append(tx.undoFragments, tx.arena.store(raw))
}

// MergeUndo concatenates xid's accumulated undo fragments into one
// contiguous undo record and clears the fragment list. Returns nil if no
// fragments were pending (the common single-block case).
func (b *TxBuffer) MergeUndo(xid Xid) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.active[xid]
	if !ok || len(tx.undoFragments) == 0 {
		return nil
	}
	total := 0
	for _, f := range tx.undoFragments {
		total += len(f)
	}
	out := make([]byte, 0, total)
	for _, f := range tx.undoFragments {
		out = append(out, f...)
	}
	tx.undoFragments = nil
	return out
}

// AddChange adds a decoded row/DDL Change to xid's transaction, copying
// every referenced byte slice into the transaction's arena first. If an
// undo vector (5.1/5.11) was just recorded for this xid and not yet
// claimed by a Change, this Change is its pair: the pendingUndo entry in
// rollbackIdx is pointed at it so a later partial-rollback marker can
// find and discard it via ReplayRollback.
func (b *TxBuffer) AddChange(xid Xid, ch *Change, scn Scn) {
	if ch == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	tx := b.get(xid, scn)
	owned := tx.arena.copyChange(ch)
	tx.Changes = append(tx.Changes, owned)
	if tx.pendingUndoKey != nil {
		if pu, ok := b.rollbackIdx[*tx.pendingUndoKey]; ok {
			pu.change = owned
		}
		tx.pendingUndoKey = nil
	}
}

// ReplayRollback looks up key (built from a 5.6/5.11 partial-rollback
// marker) and, if found, removes the matching pending Change from its
// transaction — the row-level effect that marker undoes. Reports a
// PairingError warning (not fatal) via b.warn when no match exists, since a marker
// for a change emitted before this decoder started reading is routine at
// stream startup.
func (b *TxBuffer) ReplayRollback(key RollbackMatchKey) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pu, ok := b.rollbackIdx[key]
	if !ok {
		b.warn(PairingErr(0, "partial rollback marker has no matching undo entry"))
		return
	}
	delete(b.rollbackIdx, key)
	tx, ok := b.active[pu.xid]
	if !ok {
		return
	}
	if pu.change == nil {
		return
	}
	for i, c := range tx.Changes {
		if c == pu.change {
			tx.Changes = append(tx.Changes[:i], tx.Changes[i+1:]...)
			break
		}
	}
}

// Commit marks xid committed and returns its Transaction for emission,
// removing it from the active map. The caller (pipeline.go) is
// responsible for handing tx.Changes to the Emitter before discarding it.
func (b *TxBuffer) Commit(xid Xid, scn Scn) (*Transaction, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	tx, ok := b.active[xid]
	if !ok {
		return nil, false
	}
	tx.State = TxCommitted
	delete(b.active, xid)
	b.clearRollbackIndex(xid)
	return tx, true
}

// Rollback discards xid's transaction entirely: nothing it buffered is
// ever emitted.
func (b *TxBuffer) Rollback(xid Xid) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.active, xid)
	b.clearRollbackIndex(xid)
}

func (b *TxBuffer) clearRollbackIndex(xid Xid) {
	for k, pu := range b.rollbackIdx {
		if pu.xid == xid {
			delete(b.rollbackIdx, k)
		}
	}
}

// ActiveCount reports how many transactions are currently buffered —
// printed by cmd/redocore/main.go's interactive REPL.
func (b *TxBuffer) ActiveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.active)
}

// MinFirstSeenScn returns the oldest FirstSeenScn among active
// transactions, or ScnNone if none are active — the watermark the
// Checkpoint Coordinator may not advance past.
func (b *TxBuffer) MinFirstSeenScn() Scn {
	b.mu.Lock()
	defer b.mu.Unlock()
	min := ScnNone
	for _, tx := range b.active {
		if min.IsNone() || tx.FirstSeenScn.Compare(min) < 0 {
			min = tx.FirstSeenScn
		}
	}
	return min
}
