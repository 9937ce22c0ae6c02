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

// vectorHeaderLen is 24 bytes pre-12.1, 32 bytes from 12.1 (con_id added).
func vectorHeaderLen(conIDPresent bool) int {
	if conIDPresent {
		return 32
	}
	return 24
}

// SplitVectors walks rec.Body splitting it into ChangeVectors. It never
// copies payload: every Field is an (offset, length) into rec.Body, and
// every returned ChangeVector's `record` field aliases rec.Body directly.
// Callers that need the vectors to outlive the next Framer.Next() call
// must copy the bytes they keep (TxBuffer.AddChange copies each retained
// Change's byte slices into the transaction's arena, see txbuffer.go).
func SplitVectors(rec *RawRecord, conIDPresent bool) ([]ChangeVector, error) {
	body := rec.Body
	var vectors []ChangeVector
	pos := 0
	hdrLen := vectorHeaderLen(conIDPresent)
	for pos+hdrLen <= len(body) {
		cls := binary.LittleEndian.Uint16(body[pos : pos+2])
		afn := binary.LittleEndian.Uint16(body[pos+2 : pos+4])
		dba := binary.LittleEndian.Uint32(body[pos+4 : pos+8])
		scnLo := binary.LittleEndian.Uint32(body[pos+8 : pos+12])
		scnHi := binary.LittleEndian.Uint16(body[pos+12 : pos+14])
		rbl := binary.LittleEndian.Uint16(body[pos+14 : pos+16])
		seq := body[pos+16]
		typ := body[pos+17]
		flg := binary.LittleEndian.Uint16(body[pos+18 : pos+20])
		var conID uint32
		vh := hdrLen
		if conIDPresent {
			conID = binary.LittleEndian.Uint32(body[pos+24 : pos+28])
		}
		if cls == 0 && afn == 0 && dba == 0 && rbl == 0 {
			// trailing zero padding, not a real vector
			break
		}
		vpos := pos + vh
		if vpos+4 > len(body) {
			return vectors, NewDecodeError(ErrFieldTooShort, int64(vpos), "vector header truncated")
		}
		opcode := binary.LittleEndian.Uint16(body[vpos : vpos+2])
		vpos += 2

		if vpos+2 > len(body) {
			return vectors, NewDecodeError(ErrFieldTooShort, int64(vpos), "field-length table truncated")
		}
		numFields := int(binary.LittleEndian.Uint16(body[vpos : vpos+2]))
		vpos += 2

		if vpos+numFields*2 > len(body) {
			return vectors, NewDecodeError(ErrFieldCountMismatch, int64(vpos), "declared field count exceeds record")
		}
		lengths := make([]uint16, numFields)
		for i := 0; i < numFields; i++ {
			lengths[i] = binary.LittleEndian.Uint16(body[vpos+i*2 : vpos+i*2+2])
		}
		vpos += numFields * 2
		vpos = nextAligned(vpos)

		fields := make([]Field, numFields)
		totalVectorLen := vpos - pos
		for i, l := range lengths {
			if vpos+int(l) > len(body) {
				return vectors, NewDecodeError(ErrVectorLengthExceeded, int64(vpos), "vector field exceeds record length")
			}
			fields[i] = Field{Offset: vpos, Length: int(l)}
			step := int(l)
			vpos += step
			vpos = nextAligned(vpos)
			totalVectorLen = vpos - pos
		}
		_ = totalVectorLen

		cv := ChangeVector{
			Opcode:     opcode,
			Cls:        cls,
			Afn:        afn,
			Dba:        dba,
			ScnVector:  promoteScn48(scnHi, uint64(scnLo)),
			Rbl:        rbl,
			Seq:        seq,
			Typ:        typ,
			FlagRecord: flg,
			ConID:      conID,
			Fields:     fields,
			record:     body,
		}
		vectors = append(vectors, cv)
		pos = vpos
	}
	return vectors, nil
}
