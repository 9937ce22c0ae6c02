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
	"fmt"
	"io"
)

// DumpWriter renders decoded records in a plain-text form compatible with
// `ALTER SYSTEM DUMP LOGFILE`'s human-readable output, at the two
// verbosity levels Config.DumpRedoLog selects (DumpSummary: one line per
// vector; DumpFull: one line per field). Supplemental feature, see
// SPEC_FULL.md §10 item 3; format grounded on the original's Format.h
// layout, re-expressed in the teacher's own fmt.Fprintf dump idiom rather
// than transliterated.
type DumpWriter struct {
	w     io.Writer
	level DumpLevel
}

func NewDumpWriter(w io.Writer, level DumpLevel) *DumpWriter {
	return &DumpWriter{w: w, level: level}
}

// WriteRecord dumps one framed record's header and every split vector.
func (d *DumpWriter) WriteRecord(rec *RawRecord, vectors []ChangeVector) {
	if d.level == DumpNone {
		return
	}
	fmt.Fprintf(d.w, "REDO RECORD - scn: %s thread: %d seq: %d\n",
		rec.Header.Scn, rec.Header.Thread, rec.Header.Sequence)
	for i := range vectors {
		d.writeVector(&vectors[i])
	}
}

func (d *DumpWriter) writeVector(v *ChangeVector) {
	fmt.Fprintf(d.w, "CHANGE #%d TYP:%d CLS:%d AFN:%d DBA:0x%08x OBJ:%d SCN:%s OP:%04x\n",
		v.Seq, v.Typ, v.Cls, v.Afn, v.Dba, v.Obj, v.ScnVector, v.Opcode)
	if d.level != DumpFull {
		return
	}
	for i, f := range v.Fields {
		fmt.Fprintf(d.w, "  field[%d] len=%d: % x\n", i, f.Length, v.Bytes(f))
	}
}

// WriteChange dumps one decoded logical Change (post row-opcode decode),
// the level of detail a Builder integrator asks for when diagnosing a
// pairing/decode mismatch.
func (d *DumpWriter) WriteChange(xid Xid, ch *Change) {
	if d.level == DumpNone || ch == nil {
		return
	}
	fmt.Fprintf(d.w, "%s xid=%s obj=%d bdba=0x%08x slot=%d cols=%d\n",
		ch.Op, xid, ch.Obj, ch.Bdba, ch.Slot, ch.ColCount)
	if d.level != DumpFull {
		return
	}
	for _, c := range ch.ColumnImages {
		if c.Null {
			fmt.Fprintf(d.w, "  col[%d]: NULL\n", c.ColNum)
		} else {
			fmt.Fprintf(d.w, "  col[%d]: % x\n", c.ColNum, c.Raw)
		}
	}
}
