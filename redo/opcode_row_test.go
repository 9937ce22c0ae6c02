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

func ktbRedoField(xid Xid) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint16(b[4:6], xid.Usn)
	binary.LittleEndian.PutUint16(b[6:8], xid.Slot)
	binary.LittleEndian.PutUint32(b[8:12], xid.Sequence)
	return b
}

func ktbRedoBlockCleanoutField() []byte {
	return []byte{KtbOpBlockCleanout}
}

func kdoOpCodeField(bdba uint32, op uint8, flags uint16, itli uint8, slot uint16) []byte {
	b := make([]byte, 14)
	binary.LittleEndian.PutUint32(b[0:4], bdba)
	b[4] = op
	b[5] = itli
	binary.LittleEndian.PutUint16(b[6:8], flags)
	binary.LittleEndian.PutUint16(b[12:14], slot)
	return b
}

func TestDecodeRowOpInsert(t *testing.T) {
	xid := Xid{Usn: 1, Slot: 2, Sequence: 3}
	rowHdr := []byte{0x03, 0x02, 0x00} // fb = FIRST|LAST, ncol=2 (little-endian u16 at [1:3])
	cv := buildVector(Opcode0B02, xid,
		ktbRedoField(xid),
		kdoOpCodeField(0x01020304, KdoOpIRP, 0, 0, 5),
		rowHdr,
		[]byte("col0"),
		[]byte("col1"),
	)
	ch, err := DecodeRowOp(cv)
	if err != nil {
		t.Fatalf("DecodeRowOp: %v", err)
	}
	if ch.Op != OpInsert {
		t.Fatalf("Op = %v, want OpInsert", ch.Op)
	}
	if ch.Bdba != 0x01020304 || ch.Slot != 5 {
		t.Fatalf("Bdba/Slot = %#x/%d, want 0x01020304/5", ch.Bdba, ch.Slot)
	}
	if ch.Incomplete {
		t.Fatalf("fb FIRST|LAST must not be reported Incomplete")
	}
	if len(ch.ColumnImages) != 2 || string(ch.ColumnImages[0].Raw) != "col0" || string(ch.ColumnImages[1].Raw) != "col1" {
		t.Fatalf("unexpected column images: %+v", ch.ColumnImages)
	}
}

func TestDecodeRowOpInsertNullColumn(t *testing.T) {
	xid := Xid{Usn: 1, Slot: 1, Sequence: 1}
	rowHdr := []byte{0x03, 0x01, 0x00} // fb = FIRST|LAST, ncol=1
	cv := buildVector(Opcode0B02, xid,
		ktbRedoField(xid),
		kdoOpCodeField(1, KdoOpIRP, 0, 0, 0),
		rowHdr,
		[]byte{0xFF}, // NULL marker
	)
	ch, err := DecodeRowOp(cv)
	if err != nil {
		t.Fatalf("DecodeRowOp: %v", err)
	}
	if len(ch.ColumnImages) != 1 || !ch.ColumnImages[0].Null {
		t.Fatalf("expected one NULL column, got %+v", ch.ColumnImages)
	}
}

func TestDecodeRowOpBlockCleanoutIsNil(t *testing.T) {
	xid := Xid{Usn: 1, Slot: 1, Sequence: 1}
	cv := buildVector(Opcode0B02, xid, ktbRedoBlockCleanoutField(), kdoOpCodeField(1, KdoOpIRP, 0, 0, 0))
	ch, err := DecodeRowOp(cv)
	if err != nil {
		t.Fatalf("DecodeRowOp: %v", err)
	}
	if ch != nil {
		t.Fatalf("expected a block-cleanout vector to decode to a nil Change, got %+v", ch)
	}
}

func TestDecodeRowOpQuickMultiDelete(t *testing.T) {
	xid := Xid{Usn: 1, Slot: 1, Sequence: 1}
	slots := make([]byte, 4)
	binary.LittleEndian.PutUint16(slots[0:2], 10)
	binary.LittleEndian.PutUint16(slots[2:4], 11)
	cv := buildVector(Opcode0B0C, xid,
		ktbRedoField(xid),
		kdoOpCodeField(0x99, KdoOpQMD, 0, 0, 0),
		slots,
	)
	ch, err := DecodeRowOp(cv)
	if err != nil {
		t.Fatalf("DecodeRowOp: %v", err)
	}
	if ch.Op != OpMultiDelete || len(ch.MultiRows) != 2 {
		t.Fatalf("expected OpMultiDelete with 2 rows, got %+v", ch)
	}
	if ch.MultiRows[0].Slot != 10 || ch.MultiRows[1].Slot != 11 {
		t.Fatalf("unexpected deleted slots: %+v", ch.MultiRows)
	}
}

func ddlHeaderField(obj, dataObj uint32, ddlType uint16) []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint32(b[0:4], obj)
	binary.LittleEndian.PutUint32(b[4:8], dataObj)
	binary.LittleEndian.PutUint16(b[8:10], ddlType)
	return b
}

func TestDecodeDDL(t *testing.T) {
	xid := Xid{Usn: 3, Slot: 3, Sequence: 3}
	cv := buildVector(Opcode1801, xid, ddlHeaderField(500, 501, 7))
	ch, err := DecodeDDL(cv)
	if err != nil {
		t.Fatalf("DecodeDDL: %v", err)
	}
	if ch.Op != OpDDL || ch.Obj != 500 || ch.DataObj != 501 || ch.DDLType != 7 {
		t.Fatalf("unexpected DDL change: %+v", ch)
	}
}
