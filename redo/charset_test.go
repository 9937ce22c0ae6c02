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

func TestNewCharsetDecoderUnknownId(t *testing.T) {
	if _, ok := NewCharsetDecoder(0xBEEF); ok {
		t.Fatalf("expected an unrecognized charset id to report !ok")
	}
}

func TestCharsetDecoderWindows1252(t *testing.T) {
	d, ok := NewCharsetDecoder(CharsetWE8MSWIN1252)
	if !ok {
		t.Fatalf("expected WE8MSWIN1252 to be recognized")
	}
	// 0x93/0x94 are curly quotes in Windows-1252, outside ASCII.
	got, err := d.Decode([]byte{0x93, 'h', 'i', 0x94})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := "“hi”"
	if got != want {
		t.Fatalf("Decode = %q, want %q", got, want)
	}
}

func TestCharsetDecoderCarriesSplitUTF16Pair(t *testing.T) {
	d, ok := NewCharsetDecoder(CharsetAL16UTF16)
	if !ok {
		t.Fatalf("expected AL16UTF16 to be recognized")
	}
	full := []byte{0x41, 0x00, 0x42, 0x00} // "AB" little-endian UTF-16
	// feed a 3-byte chunk then a 1-byte chunk, simulating a LOB chunk
	// boundary that lands mid-codeunit.
	first, err := d.Decode(full[:3])
	if err != nil {
		t.Fatalf("Decode first chunk: %v", err)
	}
	second, err := d.Decode(full[3:])
	if err != nil {
		t.Fatalf("Decode second chunk: %v", err)
	}
	if first+second != "AB" {
		t.Fatalf("reassembled = %q, want %q", first+second, "AB")
	}
}
