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

// DecodeDDL decodes opcode 24.1: a DDL statement recorded against the
// dictionary. Emitted to the Builder as an OpDDL Change carrying only the
// object id and ddl-type tag; the Dictionary (dictionary.go) is the
// system of record for the resulting schema change, not this vector.
func DecodeDDL(cv *ChangeVector) (*Change, error) {
	if len(cv.Fields) < 1 {
		return nil, NewDecodeError(ErrFieldCountMismatch, 0, "24.1 vector missing header field")
	}
	hdr := cv.FieldBytes(0)
	if len(hdr) < 10 {
		return nil, NewDecodeError(ErrFieldTooShort, 0, "24.1 header field too short")
	}
	obj := binary.LittleEndian.Uint32(hdr[0:4])
	dataObj := binary.LittleEndian.Uint32(hdr[4:8])
	ddlType := binary.LittleEndian.Uint16(hdr[8:10])
	return &Change{
		Op:      OpDDL,
		Obj:     obj,
		DataObj: dataObj,
		DDLType: ddlType,
		Xid:     cv.Xid,
	}, nil
}
