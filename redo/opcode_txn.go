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

// TxnBeginVector is the decoded 5.2 vector: marks the first redo generated
// by a transaction. The Transaction Buffer uses this only to record
// "first-seen SCN" for the Checkpoint Coordinator's min-heap — the
// transaction itself is created lazily, on first Change, not here.
type TxnBeginVector struct {
	Xid Xid
	Obj uint32
	Tsn uint32
}

// DecodeTxnBegin decodes opcode 5.2.
func DecodeTxnBegin(cv *ChangeVector) (TxnBeginVector, error) {
	if len(cv.Fields) < 1 {
		return TxnBeginVector{}, NewDecodeError(ErrFieldCountMismatch, 0, "5.2 vector missing ktub field")
	}
	u, ok := ktub(cv.FieldBytes(0))
	if !ok {
		return TxnBeginVector{}, NewDecodeError(ErrFieldTooShort, 0, "5.2 ktub field too short")
	}
	return TxnBeginVector{Xid: cv.Xid, Obj: u.Obj, Tsn: u.Tsn}, nil
}

// TxnEndKind distinguishes the three ways a 5.4 vector can end a
// transaction.
type TxnEndKind uint8

const (
	TxnCommit TxnEndKind = iota
	TxnRollback
	TxnPartialRollback
)

// TxnEndVector is the decoded 5.4/5.6 vector. Uba/Dba are populated for
// every kind, and Slt/Rci/OpFlags whenever field[1] carries a ktub; only a
// partial rollback (5.6/5.11) uses them. They mirror the fields
// AddUndo keys a RollbackMatchKey on, so finishTxn can replay the marker
// against the Transaction Buffer without a second decode pass.
type TxnEndVector struct {
	Xid     Xid
	Kind    TxnEndKind
	Scn     Scn
	Uba     uint64
	Dba     uint32
	Slt     uint8
	Rci     uint8
	OpFlags uint16
}

// ktucm flag bit distinguishing commit from full rollback in a 5.4 vector.
const ktucmFlgRolledBack = 0x02

// DecodeTxnEnd decodes opcode 5.4 (commit/rollback) using field[0]'s ktucm
// shape (reused verbatim from ktudh — see opcode.go) and the 5.6 partial
// rollback using the same layout with Kind forced to TxnPartialRollback.
// field[1], when present, is the same trailing ktub sub-prolog AddUndo
// reads off a 5.1 vector — present here so a 5.6 marker carries the
// (slt, rci, op_flags) refinement needed to build its RollbackMatchKey.
func DecodeTxnEnd(cv *ChangeVector, partial bool) (TxnEndVector, error) {
	if len(cv.Fields) < 1 {
		return TxnEndVector{}, NewDecodeError(ErrFieldCountMismatch, 0, "5.4/5.6 vector missing ktucm field")
	}
	c, ok := ktucm(cv.FieldBytes(0))
	if !ok {
		return TxnEndVector{}, NewDecodeError(ErrFieldTooShort, 0, "ktucm field too short")
	}
	ev := TxnEndVector{Xid: c.Xid, Scn: cv.ScnVector, Uba: c.Uba, Dba: cv.Dba}
	switch {
	case partial:
		ev.Kind = TxnPartialRollback
	case c.Flg&ktucmFlgRolledBack != 0:
		ev.Kind = TxnRollback
	default:
		ev.Kind = TxnCommit
	}
	if len(cv.Fields) >= 2 {
		if payload, ok := ktub(cv.FieldBytes(1)); ok {
			ev.Slt = payload.Slt
			ev.Rci = payload.Rci
			ev.OpFlags = payload.Flg
		}
	}
	return ev, nil
}

// RollbackMatchKey is the 5-tuple the Transaction Buffer uses to pair a
// partial-rollback marker (5.6/5.11) with the row-level change it undoes,
// per spec.md §9's Open Question — decided in favor of the wider 5-tuple
// over the four-tuple (uba, dba, slt, rci) without op_flags, documented in
// DESIGN.md.
type RollbackMatchKey struct {
	Uba      uint64
	Dba      uint32
	Slt      uint8
	Rci      uint8
	OpFlags  uint16
}

// MatchKeyFor builds the RollbackMatchKey a decoded UndoVector/KtubResult
// pair would be matched against when replaying a rollback marker.
func MatchKeyFor(uba uint64, dba uint32, slt, rci uint8, opFlags uint16) RollbackMatchKey {
	return RollbackMatchKey{Uba: uba, Dba: dba, Slt: slt, Rci: rci, OpFlags: opFlags}
}
