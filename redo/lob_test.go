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
	"os"
	"testing"
)

func testLobId(b byte) LobId {
	var l LobId
	l[0] = b
	return l
}

func TestLobReassemblerIndexThenDataCompletes(t *testing.T) {
	r := NewLobReassembler()
	lob := testLobId(1)

	r.AddIndexPage(LobVector{Lob: lob, Dba: 100, PageNo: 0, PageSize: 4, SizePages: 2, SizeRest: 0})
	r.AddIndexPage(LobVector{Lob: lob, Dba: 200, PageNo: 1, PageSize: 4, SizePages: 2, SizeRest: 0})
	r.AddDataChunk(LobVector{Lob: lob, Dba: 100, Data: []byte("abcd")})
	r.AddDataChunk(LobVector{Lob: lob, Dba: 200, Data: []byte("efgh")})

	got, err := r.Complete(lob)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if string(got) != "abcdefgh" {
		t.Fatalf("Complete = %q, want %q", got, "abcdefgh")
	}
}

func TestLobReassemblerDataBeforeIndexIsParkedAsOrphan(t *testing.T) {
	r := NewLobReassembler()
	lob := testLobId(2)

	// data chunk arrives first, naming a dba with no index entry yet.
	r.AddDataChunk(LobVector{Lob: lob, Dba: 300, Data: []byte("wxyz")})
	if _, err := r.Complete(lob); err == nil {
		t.Fatalf("expected Complete to fail while the index page is still missing")
	}

	r.AddIndexPage(LobVector{Lob: lob, Dba: 300, PageNo: 0, PageSize: 4, SizePages: 1, SizeRest: 0})
	got, err := r.Complete(lob)
	if err != nil {
		t.Fatalf("Complete after the matching index page arrived: %v", err)
	}
	if string(got) != "wxyz" {
		t.Fatalf("Complete = %q, want %q", got, "wxyz")
	}
}

func TestLobReassemblerSpillsOversizedOrphanPool(t *testing.T) {
	dir := t.TempDir()
	r := NewLobReassemblerWithSpill(dir, 8) // tiny threshold to force a spill
	lob := testLobId(3)

	r.AddDataChunk(LobVector{Lob: lob, Dba: 1, Data: []byte("0123456789")})

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one spilled chunk file under %s, got %d", dir, len(entries))
	}

	r.AddIndexPage(LobVector{Lob: lob, Dba: 1, PageNo: 0, PageSize: 10, SizePages: 1, SizeRest: 0})
	got, err := r.Complete(lob)
	if err != nil {
		t.Fatalf("Complete after unspilling: %v", err)
	}
	if string(got) != "0123456789" {
		t.Fatalf("Complete = %q, want %q", got, "0123456789")
	}

	entries, _ = os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected the spill file to be removed once reattached, found %d", len(entries))
	}
}

func TestInRowValue(t *testing.T) {
	if _, ok := InRowValue(ColumnImage{Null: true}); ok {
		t.Fatalf("a NULL column must not produce an in-row value")
	}
	v, ok := InRowValue(ColumnImage{Raw: []byte("abc")})
	if !ok || string(v) != "abc" {
		t.Fatalf("InRowValue = (%q, %v), want (\"abc\", true)", v, ok)
	}
}
