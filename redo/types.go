/*
Copyright (C) 2023-2026  Carl-Philip Hänsch

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

	"github.com/launix-de/NonLockingReadMap"
)

// Scn is a 64-bit monotonically non-decreasing logical clock. Wire format
// may deliver either a 48-bit (pre-12.2) or 64-bit representation; callers
// must promote to ScnNone-aware 64 bit values before storing one.
type Scn uint64

// ScnNone is the "unset" sentinel.
const ScnNone Scn = 0xFFFFFFFFFFFFFFFF

// IsNone reports whether the Scn is the "unset" sentinel.
func (s Scn) IsNone() bool { return s == ScnNone }

// Compare returns -1, 0, 1 the way bytes.Compare does, with ScnNone sorting
// last (it never satisfies a "has the transaction committed" check).
func (s Scn) Compare(o Scn) int {
	if s == o {
		return 0
	}
	if s.IsNone() {
		return 1
	}
	if o.IsNone() {
		return -1
	}
	if s < o {
		return -1
	}
	return 1
}

func (s Scn) String() string {
	if s.IsNone() {
		return "SCN(none)"
	}
	return fmt.Sprintf("SCN(%d)", uint64(s))
}

// promoteScn48 widens a pre-12.2 48-bit wire SCN into a full 64-bit Scn.
// The top 16 bits of the wire value carry a "wrap" counter in older
// formats; callers pass it separately since the wrap lives in a sibling
// field rather than being packed into the 48-bit value itself.
func promoteScn48(wrap uint16, base48 uint64) Scn {
	return Scn((uint64(wrap) << 48) | (base48 & 0x0000FFFFFFFFFFFF))
}

// Xid is a transaction identifier: (usn, slot, sequence) packed into 64
// bits. (usn, slot) names a rollback-segment slot; sequence disambiguates
// slot reuse. Unique across one running database at any instant.
type Xid struct {
	Usn      uint16
	Slot     uint16
	Sequence uint32
}

// XidNone is the zero-value Xid, used as a sentinel for "no transaction".
var XidNone = Xid{}

func (x Xid) IsNone() bool { return x == XidNone }

func (x Xid) String() string {
	return fmt.Sprintf("%d.%d.%d", x.Usn, x.Slot, x.Sequence)
}

// Pack encodes the Xid the way Oracle does: usn in bits 48-63, slot in
// bits 32-47, sequence in bits 0-31.
func (x Xid) Pack() uint64 {
	return uint64(x.Usn)<<48 | uint64(x.Slot)<<32 | uint64(x.Sequence)
}

// UnpackXid decodes a packed 64-bit xid.
func UnpackXid(v uint64) Xid {
	return Xid{
		Usn:      uint16(v >> 48),
		Slot:     uint16(v >> 32),
		Sequence: uint32(v),
	}
}

// RecordHeader carries the fields the Record Framer extracts from a
// record's prolog before handing the body to the Vector Splitter.
type RecordHeader struct {
	Scn       Scn
	Subscn    uint16
	Sequence  uint32
	Timestamp uint32
	Thread    uint16
	Vld       uint8
	ConUID    uint32 // 12.1+
}

// IsLwnHeader reports whether this record starts a new LWN group (VLD bit
// 0x04 set).
func (h RecordHeader) IsLwnHeader() bool { return h.Vld&0x04 != 0 }

// RedoRecord is one atomic-per-crash-recovery redo record: every vector in
// it applies, or none do.
type RedoRecord struct {
	Header  RecordHeader
	Vectors []ChangeVector
}

// ChangeVector is one split-out vector inside a RedoRecord. Fields
// reference (offset, length) ranges into the record's byte buffer — the
// splitter never copies payload.
type ChangeVector struct {
	Opcode       uint16 // two-byte opcode tag, e.g. 0x0B02
	Opc          uint16 // sibling undo/redo opcode, 0 if not applicable
	Cls          uint16
	Afn          uint16
	Dba          uint32
	ScnVector    Scn
	Rbl          uint16
	Seq          uint8
	Typ          uint8
	FlagRecord   uint16
	ConID        uint32 // 12.1+
	Xid          Xid
	Obj          uint32
	DataObj      uint32
	Fields       []Field // variable-length value slots, offsets into Record
	record       []byte  // owning record buffer (not copied)
}

// Field is an (offset, length) slice into the owning ChangeVector's record
// buffer. Bytes returns the referenced slice.
type Field struct {
	Offset int
	Length int
}

func (v *ChangeVector) Bytes(f Field) []byte {
	if f.Length == 0 {
		return nil
	}
	return v.record[f.Offset : f.Offset+f.Length]
}

func (v *ChangeVector) FieldBytes(i int) []byte {
	if i < 0 || i >= len(v.Fields) {
		return nil
	}
	return v.Bytes(v.Fields[i])
}

// Op enumerates the logical operations a Change can carry.
type Op uint8

const (
	OpInsert Op = iota
	OpDelete
	OpUpdate
	OpOverwrite
	OpMultiInsert
	OpMultiDelete
	OpLock
	OpDDL
	OpSuppLog
	OpBegin  // internal transaction-begin marker, never reaches the Builder directly
	OpCommit // internal transaction-commit marker
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpDelete:
		return "DELETE"
	case OpUpdate:
		return "UPDATE"
	case OpOverwrite:
		return "OVERWRITE"
	case OpMultiInsert:
		return "MULTI_INSERT"
	case OpMultiDelete:
		return "MULTI_DELETE"
	case OpLock:
		return "LOCK"
	case OpDDL:
		return "DDL"
	case OpSuppLog:
		return "SUPP_LOG"
	case OpBegin:
		return "BEGIN"
	case OpCommit:
		return "COMMIT"
	default:
		return "UNKNOWN"
	}
}

// ColumnImage is one decoded column value. Null is true for SQL NULL
// (wire length 0xFF). Raw references the Transaction's arena, not the
// redo buffer.
type ColumnImage struct {
	ColNum      uint16
	Raw         []byte
	Null        bool
	Compressed  bool // part of an opaque block-compressed row blob
	Before      bool // before-image (supplemental log) vs after-image
}

// SuppLog is the trailing supplemental-logging section attached to an
// update/delete when the table has supplemental logging enabled.
type SuppLog struct {
	Fb         uint8
	ColCount   uint16
	BeforeCnt  uint16
	AfterCnt   uint16
	Bdba       uint32
	Slot       uint16
	Columns    []ColumnImage
}

// LobRef is a reference from a row's column to a LOB value, resolved by
// the LOB Reassembly engine before the Change is handed to the Emitter.
type LobRef struct {
	ColNum  uint16
	Lob     LobId
	Storage LobStorageKind
}

type LobStorageKind uint8

const (
	LobInRow LobStorageKind = iota
	LobInIndex
	LobInValue
)

// Change is a decoded row/DDL event, owned by exactly one Transaction.
type Change struct {
	Op            Op
	Obj           uint32
	DataObj       uint32
	Bdba          uint32
	Slot          uint16
	RowFlags      uint8
	ColCount      uint16
	NullsBitmap   []byte
	ColumnImages  []ColumnImage
	SuppLog       *SuppLog
	LobRefs       []LobRef
	DDLType       uint16
	Xid           Xid
	Incomplete    bool // an L-flag (last row piece) is still pending
	MultiRows     []Change // populated by 11.11/11.12 quick multi-insert/delete

	// Meta is the Dictionary's resolved schema for Obj, filled in by the
	// pipeline before this Change reaches the Transaction Buffer. Nil
	// when the Dictionary has no entry for Obj (see SchemaMissingErr) or
	// no Dictionary was configured at all (schemaless operation).
	Meta *TableMeta
}

// LobId is Oracle's opaque 10-byte LOB identifier.
type LobId [10]byte

func (l LobId) String() string { return fmt.Sprintf("%x", [10]byte(l)) }

// LobKey identifies one LOB page fragment's storage slot.
type LobKey struct {
	Lob LobId
	Dba uint32
}

// LobData accumulates the page index and byte chunks of one in-progress
// (or completed) LOB value.
type LobData struct {
	PageSize  uint32
	SizePages uint32
	SizeRest  uint32
	PageNo     map[uint32]uint32      // page_dba -> page_no
	Chunks     map[lobChunkKey][]byte // (page_dba, offset) -> bytes
	IndexSeen  bool                   // true once a real 10.x index page has arrived

	// DataSeen tracks which page_no values have a data chunk recorded, the
	// same lock-free growable bitmap the teacher's transaction visibility
	// mask (storage/transaction.go) and compute cache (compute_proxy.go)
	// use, so Complete can reject an incomplete LOB in O(set bits) instead
	// of building dbaByPage and walking every page.
	DataSeen NonLockingReadMap.NonBlockingBitMap
}

type lobChunkKey struct {
	Dba    uint32
	Offset uint32
}

// TotalSize is the size a fully-reassembled LOB must equal.
func (d *LobData) TotalSize() uint64 {
	return uint64(d.SizePages)*uint64(d.PageSize) + uint64(d.SizeRest)
}

// Checkpoint is the persisted watermark: no transaction with
// CommitScn <= ScnWatermark may remain un-flushed.
type Checkpoint struct {
	Sequence         uint32
	ScnWatermark     Scn
	MinActiveXid     Xid
	MinActiveSeq     uint32
	MinActiveOffset  uint64
	FileOffset       uint64
	Timestamp        uint32
	SchemaScn        Scn
}
