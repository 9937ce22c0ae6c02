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

func TestScnCompareOrdersNoneLast(t *testing.T) {
	a := Scn(100)
	b := Scn(200)
	if a.Compare(b) >= 0 {
		t.Fatalf("expected 100 < 200")
	}
	if b.Compare(a) <= 0 {
		t.Fatalf("expected 200 > 100")
	}
	if a.Compare(a) != 0 {
		t.Fatalf("expected equal scns to compare 0")
	}
	if a.Compare(ScnNone) >= 0 {
		t.Fatalf("any set scn must sort before ScnNone")
	}
	if ScnNone.Compare(a) <= 0 {
		t.Fatalf("ScnNone must sort after any set scn")
	}
}

func TestPromoteScn48PacksWrapIntoTopBits(t *testing.T) {
	got := promoteScn48(1, 0x0000FFFFFFFFFFFF)
	want := Scn(uint64(1)<<48 | 0x0000FFFFFFFFFFFF)
	if got != want {
		t.Fatalf("promoteScn48 = %#x, want %#x", uint64(got), uint64(want))
	}
}

func TestXidPackUnpackRoundTrips(t *testing.T) {
	x := Xid{Usn: 12, Slot: 34, Sequence: 56789}
	got := UnpackXid(x.Pack())
	if got != x {
		t.Fatalf("UnpackXid(Pack()) = %+v, want %+v", got, x)
	}
}

func TestXidNoneIsZeroValue(t *testing.T) {
	if !XidNone.IsNone() {
		t.Fatalf("XidNone must report IsNone")
	}
	if (Xid{Usn: 1}).IsNone() {
		t.Fatalf("a non-zero xid must not report IsNone")
	}
}

func TestRecordHeaderIsLwnHeader(t *testing.T) {
	h := RecordHeader{Vld: 0x04}
	if !h.IsLwnHeader() {
		t.Fatalf("VLD bit 0x04 must mark an LWN header")
	}
	h2 := RecordHeader{Vld: 0x01}
	if h2.IsLwnHeader() {
		t.Fatalf("VLD without bit 0x04 must not be an LWN header")
	}
}
