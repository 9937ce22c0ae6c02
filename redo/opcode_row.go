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

// DecodeRowOp decodes any 11.x vector (table row operations) into a
// *Change, dispatching on cv.Opcode the way the teacher's
// storage/storage-int.go family dispatches on a leading type tag, except
// here the tag lives in the change vector header rather than the first
// payload byte.
//
// field[0] is always ktbRedo (ITL-slot prolog); field[1] is always
// kdoOpCode (bdba/op/flags); fields[2:] hold op-specific column data.
func DecodeRowOp(cv *ChangeVector) (*Change, error) {
	if len(cv.Fields) < 2 {
		return nil, NewDecodeError(ErrFieldCountMismatch, 0, "row vector needs at least ktbRedo+kdoOpCode fields")
	}
	ktb := ktbRedo(cv.FieldBytes(0))
	if ktb.BlockCleanout {
		return nil, nil // block-cleanout entries carry no logical change
	}
	kdo, ok := kdoOpCode(cv.FieldBytes(1))
	if !ok {
		return nil, NewDecodeError(ErrFieldTooShort, 0, "kdoOpCode field too short")
	}

	xid := cv.Xid
	if ktb.XidPresent {
		xid = ktb.Xid
	}

	ch := &Change{
		Obj:      cv.Obj,
		DataObj:  cv.DataObj,
		Bdba:     kdo.Bdba,
		Slot:     kdo.Slot,
		RowFlags: uint8(kdo.Flags),
		Xid:      xid,
	}

	switch cv.Opcode {
	case Opcode0B02:
		return decodeIRP(ch, cv, kdo)
	case Opcode0B03:
		return decodeDRP(ch, cv, kdo)
	case Opcode0B05, Opcode0B16: // 0B16 aliased to 0B05, see DESIGN.md
		return decodeURP(ch, cv, kdo)
	case Opcode0B06:
		return decodeORP(ch, cv, kdo)
	case Opcode0B08:
		return decodeMFC(ch, cv, kdo)
	case Opcode0B0B:
		return decodeQMI(ch, cv, kdo)
	case Opcode0B0C:
		return decodeQMD(ch, cv, kdo)
	case Opcode0B10:
		return decodeSuppLogOnly(ch, cv)
	default:
		return nil, NewDecodeError(ErrFieldCountMismatch, 0, "unrecognized row opcode")
	}
}

// decodeIRP decodes 11.2 insert row piece: field[2] is the fb flag byte
// followed by jcc (column count, little-endian u16 at bytes 1-2),
// fields[3:] are one per column value.
func decodeIRP(ch *Change, cv *ChangeVector, kdo KdoOpCodeResult) (*Change, error) {
	ch.Op = OpInsert
	if len(cv.Fields) < 3 {
		return nil, NewDecodeError(ErrFieldCountMismatch, 0, "11.2 vector missing row header field")
	}
	hdr := cv.FieldBytes(2)
	if len(hdr) < 3 {
		return nil, NewDecodeError(ErrFieldTooShort, 0, "11.2 row header too short")
	}
	ch.RowFlags = hdr[0]
	ch.ColCount = binary.LittleEndian.Uint16(hdr[1:3])
	if len(cv.Fields) == 4 && isBlockCompressedRow(len(cv.FieldBytes(3)), int(kdo.SizeDelt), int(ch.ColCount)) {
		rows, err := ExplodeCompressedRow(CompressedRowBlob{Raw: cv.FieldBytes(3)})
		if err != nil {
			return nil, err
		}
		return applyExplodedRows(ch, rows), nil
	}
	ch.ColumnImages = decodeColumnFields(cv, 3, int(ch.ColCount))
	ch.Incomplete = hdr[0]&0x02 == 0 // fb bit 0x01 = FLG_FIRST; 0x02 = FLG_LAST
	return ch, nil
}

// applyExplodedRows folds ExplodeCompressedRow's output into ch. A single
// exploded row (the common case — one compressed blob wraps one logical
// row) becomes ch's own column image; more than one collapses ch into a
// multi-insert the way 11.11 (decodeQMI) already does, since Oracle's
// OLTP compression only ever wraps this shape around direct-path/array
// inserts.
func applyExplodedRows(ch *Change, rows []Change) *Change {
	if len(rows) == 1 {
		ch.ColumnImages = rows[0].ColumnImages
		ch.ColCount = rows[0].ColCount
		ch.Incomplete = false
		return ch
	}
	for i := range rows {
		rows[i].Obj = ch.Obj
		rows[i].DataObj = ch.DataObj
		rows[i].Bdba = ch.Bdba
		rows[i].Xid = ch.Xid
	}
	ch.MultiRows = rows
	ch.Op = OpMultiInsert
	return ch
}

// decodeDRP decodes 11.3 delete row piece: no column payload at all, just
// the slot being vacated (kdo.Slot) plus whatever supplemental log trails.
func decodeDRP(ch *Change, cv *ChangeVector, kdo KdoOpCodeResult) (*Change, error) {
	ch.Op = OpDelete
	if len(cv.Fields) > 2 {
		if sl, err := decodeSuppLog(cv, 2); err == nil {
			ch.SuppLog = sl
		}
	}
	return ch, nil
}

// decodeURP decodes 11.5 update row piece. field[2] carries (fb/lb, slot,
// ncol, column-number array); column values then come either one-per-field
// (fields[3:]) or packed into a single trailing KDOM2 vector when
// kdo.Flags&FlagsKDOKDOM2 is set.
func decodeURP(ch *Change, cv *ChangeVector, kdo KdoOpCodeResult) (*Change, error) {
	ch.Op = OpUpdate
	if len(cv.Fields) < 3 {
		return nil, NewDecodeError(ErrFieldCountMismatch, 0, "11.5 vector missing row header field")
	}
	hdr := cv.FieldBytes(2)
	if len(hdr) < 5 {
		return nil, NewDecodeError(ErrFieldTooShort, 0, "11.5 row header too short")
	}
	ch.RowFlags = hdr[0]
	ncol := int(binary.LittleEndian.Uint16(hdr[3:5]))
	ch.ColCount = uint16(ncol)

	switch {
	case kdo.Flags&FlagsKDOKDOM2 != 0 && len(cv.Fields) > 3:
		ch.ColumnImages = decodeKDOM2Columns(cv.FieldBytes(3), ncol)
	case len(cv.Fields) == 4 && isBlockCompressedRow(len(cv.FieldBytes(3)), int(kdo.SizeDelt), ncol):
		rows, err := ExplodeCompressedRow(CompressedRowBlob{Raw: cv.FieldBytes(3)})
		if err != nil {
			return nil, err
		}
		applyExplodedRows(ch, rows)
	default:
		ch.ColumnImages = decodeColumnFields(cv, 3, ncol)
	}

	if sl, err := decodeSuppLog(cv, 3+ncol); err == nil {
		ch.SuppLog = sl
	}
	return ch, nil
}

// decodeORP decodes 11.6, a full-row overwrite (used for chained-row
// continuation pieces and certain index maintenance paths). Shape matches
// IRP exactly.
func decodeORP(ch *Change, cv *ChangeVector, kdo KdoOpCodeResult) (*Change, error) {
	c, err := decodeIRP(ch, cv, kdo)
	if c != nil {
		c.Op = OpOverwrite
	}
	return c, err
}

// decodeMFC decodes 11.8, change-forwarding-address: a row piece moved to
// a new block/slot as part of row migration. No column payload; Bdba/Slot
// already carry the new location from kdoOpCode.
func decodeMFC(ch *Change, cv *ChangeVector, kdo KdoOpCodeResult) (*Change, error) {
	ch.Op = OpOverwrite
	ch.Incomplete = false
	return ch, nil
}

// decodeQMI decodes 11.11 quick multi-insert: a packed run of rows sharing
// one kdoOpCode header, used by direct-path and array-insert operations.
// field[2] is the per-row slot array; field[3] is the same
// (fb,lb,jcc)+columns stream repeated nrows times, exploded the same way
// rowcompress.go explodes a compressed block.
func decodeQMI(ch *Change, cv *ChangeVector, kdo KdoOpCodeResult) (*Change, error) {
	ch.Op = OpMultiInsert
	if len(cv.Fields) < 4 {
		return nil, NewDecodeError(ErrFieldCountMismatch, 0, "11.11 vector missing rows field")
	}
	changes, err := explodeRowsHeader(cv.FieldBytes(3))
	if err != nil {
		return nil, err
	}
	for i := range changes {
		changes[i].Obj = ch.Obj
		changes[i].DataObj = ch.DataObj
		changes[i].Bdba = ch.Bdba
		changes[i].Xid = ch.Xid
		changes[i].Op = OpInsert
	}
	ch.MultiRows = changes
	return ch, nil
}

// decodeQMD decodes 11.12 quick multi-delete: field[2] is a packed array
// of slot numbers, one per deleted row, no column payload.
func decodeQMD(ch *Change, cv *ChangeVector, kdo KdoOpCodeResult) (*Change, error) {
	ch.Op = OpMultiDelete
	if len(cv.Fields) < 3 {
		return ch, nil
	}
	slots := cv.FieldBytes(2)
	rows := make([]Change, 0, len(slots)/2)
	for i := 0; i+2 <= len(slots); i += 2 {
		rows = append(rows, Change{
			Op:      OpDelete,
			Obj:     ch.Obj,
			DataObj: ch.DataObj,
			Bdba:    ch.Bdba,
			Slot:    binary.LittleEndian.Uint16(slots[i : i+2]),
			Xid:     ch.Xid,
		})
	}
	ch.MultiRows = rows
	return ch, nil
}

// decodeSuppLogOnly decodes 11.16, a supplemental-log-only vector attached
// to an update that otherwise carries no direct column payload of its own
// (e.g. an update that only touched indexed/unique-key columns already
// present in an adjoining 11.5 vector within the same redo record).
func decodeSuppLogOnly(ch *Change, cv *ChangeVector) (*Change, error) {
	ch.Op = OpSuppLog
	sl, err := decodeSuppLog(cv, 0)
	if err != nil {
		return nil, err
	}
	ch.SuppLog = sl
	return ch, nil
}

// decodeColumnFields decodes count consecutive one-field-per-column
// values starting at fields[start], applying the 0xFE/0xFF markers via
// decodeColumnField (column.go).
func decodeColumnFields(cv *ChangeVector, start, count int) []ColumnImage {
	out := make([]ColumnImage, 0, count)
	for i := 0; i < count; i++ {
		idx := start + i
		if idx >= len(cv.Fields) {
			break
		}
		val, isNull := decodeColumnField(cv.FieldBytes(idx))
		out = append(out, ColumnImage{ColNum: uint16(i), Raw: val, Null: isNull})
	}
	return out
}

// decodeSuppLog decodes the trailing supplemental-log field, present when
// the vector's FlagRecord carries the supplemental-logging bit and a
// field remains past the direct column payload.
func decodeSuppLog(cv *ChangeVector, fieldIdx int) (*SuppLog, error) {
	const suppLogFlag = 0x0020
	if cv.FlagRecord&suppLogFlag == 0 {
		return nil, nil
	}
	if fieldIdx >= len(cv.Fields) {
		return nil, NewDecodeError(ErrFieldCountMismatch, 0, "supplemental log flag set but field missing")
	}
	raw := cv.FieldBytes(fieldIdx)
	if len(raw) < 12 {
		return nil, NewDecodeError(ErrFieldTooShort, 0, "supplemental log field too short")
	}
	sl := &SuppLog{
		Fb:        raw[0],
		ColCount:  binary.LittleEndian.Uint16(raw[2:4]),
		BeforeCnt: binary.LittleEndian.Uint16(raw[4:6]),
		AfterCnt:  binary.LittleEndian.Uint16(raw[6:8]),
		Bdba:      binary.LittleEndian.Uint32(raw[8:12]),
	}
	if len(raw) >= 14 {
		sl.Slot = binary.LittleEndian.Uint16(raw[12:14])
	}
	if fieldIdx+1 < len(cv.Fields) {
		cols := decodeColumnFields(cv, fieldIdx+1, int(sl.ColCount))
		for i := range cols {
			cols[i].Before = true
		}
		sl.Columns = cols
	}
	return sl, nil
}
