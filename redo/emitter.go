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

// Builder is the five-call Emitter ABI a downstream consumer implements.
// Sequencing (begin → per-change dispatch → commit) and the
// max-message-mb flush-boundary split are this package's job, not the
// Builder's — grounded on storage/trigger.go's timing-keyed callback
// dispatch and storage/table.go's per-operation method set
// (Insert/Update/Delete taking column slices), generalized from one
// table's triggers to one transaction's whole change stream.
// meta is always the Dictionary's resolution of obj (redo/pipeline.go's
// resolveSchema), nil when the object is unknown or no Dictionary is
// configured — spec.md §6 requires each dispatched Change to carry "the
// TableMeta it resolved the object against".
type Builder interface {
	ProcessBegin(xid Xid, scn Scn) error
	ProcessInsert(xid Xid, obj, dataObj, bdba uint32, slot uint16, cols []ColumnImage, meta *TableMeta) error
	ProcessUpdate(xid Xid, obj, dataObj, bdba uint32, slot uint16, cols []ColumnImage, supp *SuppLog, meta *TableMeta) error
	ProcessDelete(xid Xid, obj, dataObj, bdba uint32, slot uint16, supp *SuppLog, meta *TableMeta) error
	ProcessDDL(xid Xid, obj, dataObj uint32, ddlType uint16, meta *TableMeta) error
	ProcessInsertMultiple(xid Xid, obj, dataObj uint32, rows []Change, meta *TableMeta) error
	ProcessDeleteMultiple(xid Xid, obj, dataObj uint32, rows []Change, meta *TableMeta) error
	ProcessCommit(xid Xid, scn Scn) error
	ProcessCheckpoint(cp Checkpoint) error
}

// Emitter owns transaction-to-Builder sequencing and the
// max-message-mb intra-transaction split (spec.md §4.6: "emit an
// intra-transaction flush boundary (commit + new begin) with a warning
// 60015" once cumulative buffered bytes cross the configured threshold).
type Emitter struct {
	builder      Builder
	maxMessageBytes int64
	counters     *ErrorCounters
	lobBuf       *LobReassembler
}

func NewEmitter(b Builder, maxMessageMB int, counters *ErrorCounters) *Emitter {
	return &Emitter{builder: b, maxMessageBytes: int64(maxMessageMB) << 20, counters: counters}
}

// SetLobReassembler installs the LOB Reassembly engine emitChange resolves
// ch.LobRefs against before dispatching to the Builder (spec.md §4.8 step
// 2). Optional: a nil reassembler leaves LobRefs columns as whatever
// locator/placeholder bytes the row decoder produced.
func (e *Emitter) SetLobReassembler(lobBuf *LobReassembler) { e.lobBuf = lobBuf }

// EmitTransaction drives one committed Transaction's Changes through the
// Builder, splitting into multiple begin/commit pairs if the accumulated
// column-byte size would exceed maxMessageBytes.
func (e *Emitter) EmitTransaction(tx *Transaction, commitScn Scn) error {
	if err := e.builder.ProcessBegin(tx.Xid, tx.FirstSeenScn); err != nil {
		return err
	}
	var buffered int64
	splitCount := 0
	for _, ch := range tx.Changes {
		if buffered > 0 && buffered+changeSize(ch) > e.maxMessageBytes {
			if err := e.builder.ProcessCommit(tx.Xid, commitScn); err != nil {
				return err
			}
			if e.counters != nil {
				e.counters.Record(newErr("DecodeError", ErrMessageSplit, SeverityWarning, 0,
					"max-message-mb exceeded, splitting transaction", nil))
			}
			splitCount++
			if err := e.builder.ProcessBegin(tx.Xid, tx.FirstSeenScn); err != nil {
				return err
			}
			buffered = 0
		}
		if err := e.emitChange(tx.Xid, ch); err != nil {
			return err
		}
		buffered += changeSize(ch)
	}
	return e.builder.ProcessCommit(tx.Xid, commitScn)
}

func (e *Emitter) emitChange(xid Xid, ch *Change) error {
	e.resolveLobRefs(ch)
	switch ch.Op {
	case OpInsert:
		return e.builder.ProcessInsert(xid, ch.Obj, ch.DataObj, ch.Bdba, ch.Slot, ch.ColumnImages, ch.Meta)
	case OpUpdate:
		return e.builder.ProcessUpdate(xid, ch.Obj, ch.DataObj, ch.Bdba, ch.Slot, ch.ColumnImages, ch.SuppLog, ch.Meta)
	case OpDelete:
		return e.builder.ProcessDelete(xid, ch.Obj, ch.DataObj, ch.Bdba, ch.Slot, ch.SuppLog, ch.Meta)
	case OpOverwrite:
		return e.builder.ProcessUpdate(xid, ch.Obj, ch.DataObj, ch.Bdba, ch.Slot, ch.ColumnImages, ch.SuppLog, ch.Meta)
	case OpDDL:
		return e.builder.ProcessDDL(xid, ch.Obj, ch.DataObj, ch.DDLType, ch.Meta)
	case OpMultiInsert:
		return e.builder.ProcessInsertMultiple(xid, ch.Obj, ch.DataObj, ch.MultiRows, ch.Meta)
	case OpMultiDelete:
		return e.builder.ProcessDeleteMultiple(xid, ch.Obj, ch.DataObj, ch.MultiRows, ch.Meta)
	case OpSuppLog:
		return nil // carries no independent row event, already folded into a sibling Change
	default:
		return nil
	}
}

// resolveLobRefs replaces each of ch's out-of-line LOB column images with
// its reassembled bytes. LobInRow values are already the full value
// (InRowValue is a pass-through check); LobInValue values may already
// carry their bytes inline (InValueValue) or need the same Complete path
// as LobInIndex when the 12c locator points out of line.
func (e *Emitter) resolveLobRefs(ch *Change) {
	if len(ch.LobRefs) == 0 {
		return
	}
	for _, ref := range ch.LobRefs {
		col := findColumnImage(ch.ColumnImages, ref.ColNum)
		if col == nil {
			continue
		}
		switch ref.Storage {
		case LobInRow:
			if _, ok := InRowValue(*col); !ok && e.counters != nil {
				e.counters.Record(LobErr(ErrLobMissingPage, "in-row lob column is NULL"))
			}
		case LobInValue:
			if inline, lob, ok := InValueValue(*col); ok {
				col.Raw = inline
				col.Null = false
			} else {
				e.completeLobInto(col, lob)
			}
		case LobInIndex:
			e.completeLobInto(col, ref.Lob)
		}
	}
}

// completeLobInto resolves lob through the LOB Reassembly engine and
// folds the reassembled bytes into col, recording a warning (not
// aborting the emit) when the LOB isn't fully buffered yet.
func (e *Emitter) completeLobInto(col *ColumnImage, lob LobId) {
	if e.lobBuf == nil {
		return
	}
	data, err := e.lobBuf.Complete(lob)
	if err != nil {
		if de, ok := err.(*DecoderError); ok && e.counters != nil {
			e.counters.Record(de)
		}
		return
	}
	col.Raw = data
	col.Null = false
}

func findColumnImage(cols []ColumnImage, colNum uint16) *ColumnImage {
	for i := range cols {
		if cols[i].ColNum == colNum {
			return &cols[i]
		}
	}
	return nil
}

// EmitCheckpoint forwards a persisted Checkpoint to the Builder, letting a
// downstream consumer track progress independently of its own storage.
func (e *Emitter) EmitCheckpoint(cp Checkpoint) error {
	return e.builder.ProcessCheckpoint(cp)
}

// changeSize estimates the wire size of a Change for max-message-mb
// accounting — sum of every column's raw bytes, the dominant cost.
func changeSize(ch *Change) int64 {
	var n int64
	for _, c := range ch.ColumnImages {
		n += int64(len(c.Raw))
	}
	if ch.SuppLog != nil {
		for _, c := range ch.SuppLog.Columns {
			n += int64(len(c.Raw))
		}
	}
	for i := range ch.MultiRows {
		n += changeSize(&ch.MultiRows[i])
	}
	return n
}
