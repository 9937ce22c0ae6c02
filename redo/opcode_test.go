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
	"encoding/binary"
	"testing"
)

// buildVector assembles a ChangeVector backed by a single contiguous
// buffer made of the given fields, the same (offset,length) indexing the
// real Vector Splitter produces.
func buildVector(opcode uint16, xid Xid, fields ...[]byte) *ChangeVector {
	var buf []byte
	vfields := make([]Field, len(fields))
	for i, f := range fields {
		vfields[i] = Field{Offset: len(buf), Length: len(f)}
		buf = append(buf, f...)
	}
	return &ChangeVector{Opcode: opcode, Xid: xid, Fields: vfields, record: buf}
}

func ktudhField(xid Xid, uba uint64, flg uint16, parent Xid) []byte {
	b := make([]byte, 32)
	binary.LittleEndian.PutUint16(b[0:2], xid.Usn)
	binary.LittleEndian.PutUint16(b[2:4], xid.Slot)
	binary.LittleEndian.PutUint32(b[4:8], xid.Sequence)
	binary.LittleEndian.PutUint64(b[8:16], uba)
	binary.LittleEndian.PutUint16(b[16:18], flg)
	binary.LittleEndian.PutUint16(b[24:26], parent.Usn)
	binary.LittleEndian.PutUint16(b[26:28], parent.Slot)
	binary.LittleEndian.PutUint32(b[28:32], parent.Sequence)
	return b
}

func ktubField(obj, dataObj, tsn uint32, opc uint16, slt, rci uint8, flg uint16) []byte {
	b := make([]byte, 20)
	binary.LittleEndian.PutUint32(b[0:4], obj)
	binary.LittleEndian.PutUint32(b[4:8], dataObj)
	binary.LittleEndian.PutUint32(b[8:12], tsn)
	binary.LittleEndian.PutUint16(b[12:14], opc)
	b[14] = slt
	b[15] = rci
	binary.LittleEndian.PutUint16(b[16:18], flg)
	return b
}

func TestDecodeTxnBegin(t *testing.T) {
	xid := Xid{Usn: 1, Slot: 2, Sequence: 3}
	cv := buildVector(Opcode0502, xid, ktubField(55, 66, 77, 0, 0, 0, 0))
	tb, err := DecodeTxnBegin(cv)
	if err != nil {
		t.Fatalf("DecodeTxnBegin: %v", err)
	}
	if tb.Xid != xid || tb.Obj != 55 || tb.Tsn != 77 {
		t.Fatalf("DecodeTxnBegin = %+v, want Xid=%v Obj=55 Tsn=77", tb, xid)
	}
}

func TestDecodeTxnEndCommitVsRollback(t *testing.T) {
	xid := Xid{Usn: 4, Slot: 5, Sequence: 6}
	commitCV := buildVector(Opcode0504, xid, ktudhField(xid, 0, 0, Xid{}))
	ev, err := DecodeTxnEnd(commitCV, false)
	if err != nil {
		t.Fatalf("DecodeTxnEnd commit: %v", err)
	}
	if ev.Kind != TxnCommit {
		t.Fatalf("expected TxnCommit, got %v", ev.Kind)
	}

	rollbackCV := buildVector(Opcode0504, xid, ktudhField(xid, 0, ktucmFlgRolledBack, Xid{}))
	ev, err = DecodeTxnEnd(rollbackCV, false)
	if err != nil {
		t.Fatalf("DecodeTxnEnd rollback: %v", err)
	}
	if ev.Kind != TxnRollback {
		t.Fatalf("expected TxnRollback, got %v", ev.Kind)
	}

	partialCV := buildVector(Opcode0506, xid, ktudhField(xid, 0, 0, Xid{}))
	ev, err = DecodeTxnEnd(partialCV, true)
	if err != nil {
		t.Fatalf("DecodeTxnEnd partial: %v", err)
	}
	if ev.Kind != TxnPartialRollback {
		t.Fatalf("expected TxnPartialRollback, got %v", ev.Kind)
	}
}

func TestDecodeUndo5_1MultiBlockFlags(t *testing.T) {
	xid := Xid{Usn: 7, Slot: 8, Sequence: 9}
	parent := Xid{Usn: 1, Slot: 1, Sequence: 1}
	flg := uint16(KtubFlgMultiBlockUndoHead | KtubFlgBeginTrans)
	cv := buildVector(Opcode0501, xid, ktudhField(xid, 0xABCD, flg, parent))

	uv, err := DecodeUndo5_1(cv)
	if err != nil {
		t.Fatalf("DecodeUndo5_1: %v", err)
	}
	if !uv.MultiBlock || !uv.BufferHead {
		t.Fatalf("expected MultiBlock+BufferHead set, got %+v", uv)
	}
	if !uv.BeginTrans {
		t.Fatalf("expected BeginTrans set")
	}
	if !uv.HasParent || uv.ParentXid != parent {
		t.Fatalf("expected parent xid %v, got HasParent=%v ParentXid=%v", parent, uv.HasParent, uv.ParentXid)
	}
}

func TestDecodeUndo5_11ForcesMultiBlock(t *testing.T) {
	xid := Xid{Usn: 1, Slot: 1, Sequence: 1}
	cv := buildVector(Opcode050D, xid, ktudhField(xid, 0, 0, Xid{}))
	uv, err := DecodeUndo5_11(cv)
	if err != nil {
		t.Fatalf("DecodeUndo5_11: %v", err)
	}
	if !uv.MultiBlock {
		t.Fatalf("expected 5.11 to always report MultiBlock, even with no undo-head/mid/tail flags")
	}
}

func TestMatchKeyForIsStableAcrossEqualInputs(t *testing.T) {
	a := MatchKeyFor(100, 200, 1, 2, 0x30)
	b := MatchKeyFor(100, 200, 1, 2, 0x30)
	if a != b {
		t.Fatalf("MatchKeyFor must be deterministic: %+v != %+v", a, b)
	}
	c := MatchKeyFor(100, 200, 1, 3, 0x30)
	if a == c {
		t.Fatalf("differing rci must produce a different match key")
	}
}
