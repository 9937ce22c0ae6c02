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

	"github.com/shopspring/decimal"
)

// FlagsKDOKDOM2 marks URP column values delivered as a vector in one
// trailing field instead of one field per column.
const FlagsKDOKDOM2 = 0x0008

// lengthExtensionMarker (0xFE) means the true length follows as a u16.
const lengthExtensionMarker = 0xFE

// lengthNullMarker (0xFF) means SQL NULL.
const lengthNullMarker = 0xFF

// decodeColumnField applies spec.md §4.4's column extraction rules to one
// raw field, generalized from storage/storage-sparse.go's declared-length
// handling (there: "value shorter/longer than declared slot"; here: the
// 0xFE extension-length and 0xFF null markers).
func decodeColumnField(raw []byte) (value []byte, isNull bool) {
	if len(raw) == 0 {
		return nil, false
	}
	switch raw[0] {
	case lengthNullMarker:
		return nil, true
	case lengthExtensionMarker:
		if len(raw) < 3 {
			return nil, false
		}
		trueLen := binary.LittleEndian.Uint16(raw[1:3])
		end := 3 + int(trueLen)
		if end > len(raw) {
			end = len(raw)
		}
		return raw[3:end], false
	default:
		return raw, false
	}
}

// decodeKDOM2Columns decodes the "column values as one trailing vector"
// case: a sequence of (length-byte-or-u16, bytes) pairs packed into a
// single field, used when FlagsKDOKDOM2 is set on a URP vector.
func decodeKDOM2Columns(blob []byte, colCount int) []ColumnImage {
	out := make([]ColumnImage, 0, colCount)
	pos := 0
	for i := 0; i < colCount && pos < len(blob); i++ {
		l := int(blob[pos])
		pos++
		var isNull bool
		var val []byte
		if l == lengthNullMarker {
			isNull = true
		} else if l == lengthExtensionMarker {
			if pos+2 > len(blob) {
				break
			}
			l = int(binary.LittleEndian.Uint16(blob[pos : pos+2]))
			pos += 2
			end := pos + l
			if end > len(blob) {
				end = len(blob)
			}
			val = blob[pos:end]
			pos = end
		} else {
			end := pos + l
			if end > len(blob) {
				end = len(blob)
			}
			val = blob[pos:end]
			pos = end
		}
		out = append(out, ColumnImage{ColNum: uint16(i), Raw: val, Null: isNull})
	}
	return out
}

// isBlockCompressedRow detects the "single trailing field's length equals
// sizeDelt but cc > 1" case spec.md §4.4 describes: the row is
// block-compressed and should be emitted as one opaque blob.
func isBlockCompressedRow(fieldLen, sizeDelt int, colCount int) bool {
	return colCount > 1 && fieldLen == sizeDelt
}

// DecodeOracleNumber decodes Oracle's variable-length base-100 NUMBER
// wire format into an exact decimal.Decimal, generalized from
// storage/storage-decimal.go's dedicated decimal column codec.
func DecodeOracleNumber(raw []byte) (decimal.Decimal, bool) {
	if len(raw) == 0 {
		return decimal.Zero, false
	}
	exponentByte := raw[0]
	negative := exponentByte&0x80 == 0
	var exp int
	if negative {
		exp = int(^exponentByte&0x7f) - 65
	} else {
		exp = int(exponentByte&0x7f) - 65
	}
	digits := raw[1:]
	if negative && len(digits) > 0 && digits[len(digits)-1] == 0x66 {
		digits = digits[:len(digits)-1]
	}
	mantissa := decimal.Zero
	hundred := decimal.New(100, 0)
	for _, d := range digits {
		var dv int64
		if negative {
			dv = 101 - int64(d)
		} else {
			dv = int64(d) - 1
		}
		mantissa = mantissa.Mul(hundred).Add(decimal.New(dv, 0))
	}
	if negative {
		mantissa = mantissa.Neg()
	}
	scale := int32(2 * (len(digits) - exp - 1))
	value := mantissa.Shift(-scale)
	return value, true
}
