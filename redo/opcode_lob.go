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

import "encoding/binary"

// LobVectorKind distinguishes the three storage layouts spec.md §4.5's
// LOB Reassembly Engine has to reconcile (in-row / in-index / in-value).
type LobVectorKind uint8

const (
	LobVecIndexPage LobVectorKind = iota // 10.x: one index-block page entry
	LobVecDataChunk                      // 26.x: one data-block byte chunk
	LobVecInRow                          // 11.x column already carries the LOB inline
)

// LobVector is the decoded shape of a 10.x/26.x change vector. Only the
// fields relevant to the kind in question are populated.
type LobVector struct {
	Kind     LobVectorKind
	Lob      LobId
	Dba      uint32
	PageNo   uint32
	Offset   uint32
	Data     []byte
	PageSize uint32
	SizePages uint32
	SizeRest  uint32
}

// lobIndexEntrySize is the fixed (lobid[10], page_no[4]) shape of one
// index-page directory entry, repeated across field[1] of a 10.x vector.
const lobIndexEntrySize = 14

// DecodeLobIndex decodes opcode 10.x: an index-block page, mapping this
// block's dba to a page_no within one LOB's byte stream. Oracle packs one
// or more (lobid, page_no) index entries per vector when rows share a
// directory block; the LOB Reassembly Engine folds every entry into its
// running PageNo map (lob.go), so all are returned here.
func DecodeLobIndex(cv *ChangeVector) ([]LobVector, error) {
	if len(cv.Fields) < 2 {
		return nil, NewDecodeError(ErrFieldCountMismatch, 0, "10.x vector missing index field")
	}
	hdr := cv.FieldBytes(0)
	if len(hdr) < 16 {
		return nil, NewDecodeError(ErrFieldTooShort, 0, "10.x header field too short")
	}
	pageSize := binary.LittleEndian.Uint32(hdr[0:4])
	sizePages := binary.LittleEndian.Uint32(hdr[4:8])
	sizeRest := binary.LittleEndian.Uint32(hdr[8:12])

	raw := cv.FieldBytes(1)
	n := len(raw) / lobIndexEntrySize
	out := make([]LobVector, 0, n)
	for i := 0; i < n; i++ {
		e := raw[i*lobIndexEntrySize : (i+1)*lobIndexEntrySize]
		var lob LobId
		copy(lob[:], e[0:10])
		pageNo := binary.LittleEndian.Uint32(e[10:14])
		out = append(out, LobVector{
			Kind:      LobVecIndexPage,
			Lob:       lob,
			Dba:       cv.Dba,
			PageNo:    pageNo,
			PageSize:  pageSize,
			SizePages: sizePages,
			SizeRest:  sizeRest,
		})
	}
	return out, nil
}

// DecodeLobData decodes opcode 26.x: one data-block byte chunk. field[0]
// carries (lobid, offset); field[1] is the raw chunk bytes.
func DecodeLobData(cv *ChangeVector) (LobVector, error) {
	if len(cv.Fields) < 2 {
		return LobVector{}, NewDecodeError(ErrFieldCountMismatch, 0, "26.x vector missing chunk field")
	}
	hdr := cv.FieldBytes(0)
	if len(hdr) < 14 {
		return LobVector{}, NewDecodeError(ErrFieldTooShort, 0, "26.x header field too short")
	}
	var lob LobId
	copy(lob[:], hdr[0:10])
	offset := binary.LittleEndian.Uint32(hdr[10:14])
	return LobVector{
		Kind:   LobVecDataChunk,
		Lob:    lob,
		Dba:    cv.Dba,
		Offset: offset,
		Data:   cv.FieldBytes(1),
	}, nil
}

// LobLocator is the 12c+ "in-value" LOB descriptor Oracle can embed
// directly in a row's column image instead of an out-of-line index/data
// pair (for the LOB list-block layout, see DESIGN.md Open Question
// decisions).
type LobLocator struct {
	Lob       LobId
	InlineLen uint32
	Inline    []byte // present only when the whole value fit inline
}

// DecodeLobLocator parses a column raw value flagged LobInValue (the
// locator header Oracle stores instead of bytes when the column is a
// 12c+ SecureFile LOB stored in the row itself).
func DecodeLobLocator(raw []byte) (LobLocator, bool) {
	if len(raw) < 14 {
		return LobLocator{}, false
	}
	var loc LobLocator
	copy(loc.Lob[:], raw[0:10])
	loc.InlineLen = binary.LittleEndian.Uint32(raw[10:14])
	if len(raw) >= int(14+loc.InlineLen) {
		loc.Inline = raw[14 : 14+loc.InlineLen]
	}
	return loc, true
}
