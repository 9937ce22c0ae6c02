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

// UndoVector is the decoded shape of a 5.1 change vector: the transaction
// descriptor (ktudh) plus whatever opcode-specific undo payload trails it.
// The Transaction Buffer indexes it by RollbackMatchKey (uba, dba, slt,
// rci, op_flags) and pairs it with the next redo (11.x) Change added for
// the same Xid — the same
// "match key before apply" idiom as storage/transaction.go's savepoint
// rollback handling, generalized from in-memory rows to byte-level undo.
type UndoVector struct {
	Xid           Xid
	Uba           uint64
	Flg           uint16
	ParentXid     Xid
	HasParent     bool
	MultiBlock    bool
	BufferHead    bool
	BufferMid     bool
	BufferTail    bool
	LastBufSplit  bool
	BeginTrans    bool
	Undo          *KtubResult
}

// DecodeUndo5_1 decodes opcode 5.1 (ktudh + trailing optional ktub),
// spec.md §4.4's "undo (generic)" entry. field[0] is always ktudh; field[1]
// (ktub) is present when the change vector also carries the "begin
// transaction"/commit bookkeeping rather than pure rollback data.
func DecodeUndo5_1(cv *ChangeVector) (UndoVector, error) {
	if len(cv.Fields) < 1 {
		return UndoVector{}, NewDecodeError(ErrFieldCountMismatch, 0, "5.1 vector missing ktudh field")
	}
	hdr, ok := ktudh(cv.FieldBytes(0))
	if !ok {
		return UndoVector{}, NewDecodeError(ErrFieldTooShort, 0, "ktudh field too short")
	}
	uv := UndoVector{
		Xid:       hdr.Xid,
		Uba:       hdr.Uba,
		Flg:       hdr.Flg,
		ParentXid: hdr.ParentXid,
		HasParent: hdr.HasParent,
	}
	uv.MultiBlock = hdr.Flg&(KtubFlgMultiBlockUndoHead|KtubFlgMultiBlockUndoMid|KtubFlgMultiBlockUndoTail) != 0
	uv.BufferHead = hdr.Flg&KtubFlgMultiBlockUndoHead != 0
	uv.BufferMid = hdr.Flg&KtubFlgMultiBlockUndoMid != 0
	uv.BufferTail = hdr.Flg&KtubFlgMultiBlockUndoTail != 0
	uv.LastBufSplit = hdr.Flg&KtubFlgLastBufferSplit != 0
	uv.BeginTrans = hdr.Flg&KtubFlgBeginTrans != 0

	if len(cv.Fields) >= 2 {
		if payload, ok := ktub(cv.FieldBytes(1)); ok {
			uv.Undo = &payload
		}
	}
	return uv, nil
}

// DecodeUndo5_11 decodes opcode 5.11, the split-undo continuation: a
// follow-on undo fragment for a transaction whose undo record didn't fit
// in one change vector. Shares ktudh's layout; FlgLastBufferSplit on the
// final fragment tells the Transaction Buffer's multi-block merge (see
// txbuffer.go) it has the complete undo record.
func DecodeUndo5_11(cv *ChangeVector) (UndoVector, error) {
	uv, err := DecodeUndo5_1(cv)
	if err != nil {
		return uv, err
	}
	uv.MultiBlock = true
	return uv, nil
}
