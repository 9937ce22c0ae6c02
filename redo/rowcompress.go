/*
Copyright (C) 2024-2026  MemCP Contributors

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
	"bytes"
	"encoding/binary"

	"github.com/pierrec/lz4/v4"
)

// CompressedRowBlob is the opaque payload spec.md §4.4 says to hand the
// Builder unexploded; ExplodeCompressedRow does the explode this core is
// allowed to do (LZ4-compressed block rows only — Oracle's OLTP table
// compression never uses anything else on the redo wire).
type CompressedRowBlob struct {
	Raw []byte
}

// ExplodeCompressedRow decompresses an LZ4 compressed row blob and walks
// its rows. Oracle's wire format for compressed blocks doesn't use a
// textual magic; the blob is a 4-byte little-endian uncompressed-size
// prefix followed by an LZ4 block.
func ExplodeCompressedRow(blob CompressedRowBlob) ([]Change, error) {
	if len(blob.Raw) < 4 {
		return nil, NewDecodeError(ErrFieldTooShort, 0, "compressed row blob too short")
	}
	uncompressedSize := binary.LittleEndian.Uint32(blob.Raw[:4])
	dst := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(blob.Raw[4:], dst)
	if err != nil {
		return nil, NewDecodeError(ErrFieldCountMismatch, 0, "lz4 decompress of compressed row failed: "+err.Error())
	}
	dst = dst[:n]
	return explodeRowsHeader(dst)
}

// explodeRowsHeader walks the exploded buffer's per-row
// (fb, lb, jcc)-headers plus length-prefixed values, per spec.md §4.8's
// "Expand compressed blobs" step.
func explodeRowsHeader(buf []byte) ([]Change, error) {
	var out []Change
	r := bytes.NewReader(buf)
	for r.Len() > 0 {
		var fb, lb uint8
		var jcc uint16
		if err := binary.Read(r, binary.LittleEndian, &fb); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &lb); err != nil {
			break
		}
		if err := binary.Read(r, binary.LittleEndian, &jcc); err != nil {
			break
		}
		cols := make([]ColumnImage, 0, jcc)
		for i := 0; i < int(jcc); i++ {
			var l uint8
			if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
				return out, NewDecodeError(ErrFieldTooShort, 0, "truncated compressed-row column")
			}
			if l == lengthNullMarker {
				cols = append(cols, ColumnImage{ColNum: uint16(i), Null: true})
				continue
			}
			val := make([]byte, l)
			if _, err := r.Read(val); err != nil {
				return out, NewDecodeError(ErrFieldTooShort, 0, "truncated compressed-row column value")
			}
			cols = append(cols, ColumnImage{ColNum: uint16(i), Raw: val})
		}
		out = append(out, Change{Op: OpInsert, ColCount: jcc, ColumnImages: cols, RowFlags: fb | lb})
	}
	return out, nil
}
