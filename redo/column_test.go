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

func TestDecodeColumnFieldPlainValue(t *testing.T) {
	val, isNull := decodeColumnField([]byte("hello"))
	if isNull || string(val) != "hello" {
		t.Fatalf("decodeColumnField = (%q, %v), want (\"hello\", false)", val, isNull)
	}
}

func TestDecodeColumnFieldNullMarker(t *testing.T) {
	val, isNull := decodeColumnField([]byte{lengthNullMarker})
	if !isNull || val != nil {
		t.Fatalf("decodeColumnField(0xFF) = (%q, %v), want (nil, true)", val, isNull)
	}
}

func TestDecodeColumnFieldLengthExtensionMarker(t *testing.T) {
	payload := make([]byte, 0, 3+300)
	payload = append(payload, lengthExtensionMarker, 0, 0) // u16 length filled below
	binary.LittleEndian.PutUint16(payload[1:3], 300)
	for i := 0; i < 300; i++ {
		payload = append(payload, byte('a'+i%26))
	}
	val, isNull := decodeColumnField(payload)
	if isNull {
		t.Fatalf("extension-length column must not be NULL")
	}
	if len(val) != 300 {
		t.Fatalf("decoded extension-length value has %d bytes, want 300", len(val))
	}
	if val[0] != 'a' || val[299] != payload[len(payload)-1] {
		t.Fatalf("extension-length value bytes not sliced correctly")
	}
}

func TestDecodeColumnFieldEmpty(t *testing.T) {
	val, isNull := decodeColumnField(nil)
	if val != nil || isNull {
		t.Fatalf("decodeColumnField(nil) = (%q, %v), want (nil, false)", val, isNull)
	}
}

func TestDecodeKDOM2ColumnsMixedPlainNullAndExtended(t *testing.T) {
	var blob []byte
	// column 0: plain 3-byte value
	blob = append(blob, 3, 'a', 'b', 'c')
	// column 1: NULL
	blob = append(blob, lengthNullMarker)
	// column 2: extension-length 260-byte value
	ext := make([]byte, 2)
	binary.LittleEndian.PutUint16(ext, 260)
	blob = append(blob, lengthExtensionMarker)
	blob = append(blob, ext...)
	for i := 0; i < 260; i++ {
		blob = append(blob, 'x')
	}

	cols := decodeKDOM2Columns(blob, 3)
	if len(cols) != 3 {
		t.Fatalf("expected 3 decoded columns, got %d", len(cols))
	}
	if string(cols[0].Raw) != "abc" || cols[0].Null {
		t.Fatalf("column 0 = %+v, want plain \"abc\"", cols[0])
	}
	if !cols[1].Null {
		t.Fatalf("column 1 must be NULL")
	}
	if len(cols[2].Raw) != 260 || cols[2].Null {
		t.Fatalf("column 2 = %d bytes null=%v, want 260 bytes not null", len(cols[2].Raw), cols[2].Null)
	}
}

func TestDecodeKDOM2ColumnsStopsAtDeclaredCount(t *testing.T) {
	var blob []byte
	blob = append(blob, 1, 'a')
	blob = append(blob, 1, 'b')
	blob = append(blob, 1, 'c')
	cols := decodeKDOM2Columns(blob, 2)
	if len(cols) != 2 {
		t.Fatalf("expected decodeKDOM2Columns to stop at the declared column count, got %d", len(cols))
	}
}

func TestIsBlockCompressedRow(t *testing.T) {
	if isBlockCompressedRow(10, 10, 1) {
		t.Fatalf("a single-column row must never be reported as block-compressed")
	}
	if !isBlockCompressedRow(10, 10, 5) {
		t.Fatalf("matching field/delta length with colCount>1 must be reported as block-compressed")
	}
	if isBlockCompressedRow(10, 11, 5) {
		t.Fatalf("mismatched field/delta length must not be reported as block-compressed")
	}
}
