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
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/ulikunitz/xz"

	"github.com/relaycdc/redocore/redo/rlog"
)

// LobReassembler accumulates index pages and data chunks for in-flight LOB
// values and reassembles a value's bytes once every page is accounted for.
// Keyed the same way storage/blob-refcount.go keys a blob by content hash,
// generalized here to Oracle's 10-byte LOB id; one mutex guards the whole
// map rather than the teacher's per-database lock since a redo stream has
// exactly one LOB namespace in flight at a time.
//
// Supplemental feature (SPEC_FULL.md §10): an orphan pool that grows past
// SpillThresholdBytes for a single LOB id (a data chunk stream running far
// ahead of its index page, e.g. a multi-gigabyte SecureFile LOB written in
// one transaction) is xz-compressed and spilled to SpillDir instead of
// held in the process's own memory budget, mirroring the teacher's
// instinct to keep steady-state RSS bounded under MemoryMaxMB.
type LobReassembler struct {
	mu      sync.Mutex
	active  map[LobId]*LobData
	orphans map[LobId][]orphanChunk

	SpillDir            string
	SpillThresholdBytes  int64
	spillSeq             atomic.Uint64
}

// orphanChunk is a 26.x data chunk that arrived before the 10.x index page
// naming its page_no — common when Oracle interleaves LOB vectors across
// several redo records. Held until the matching index page shows up, or
// spilled to disk (SpillPath set, Data nil) once the pool grows large.
type orphanChunk struct {
	Dba       uint32
	Data      []byte
	SpillPath string
	size      int64
}

func NewLobReassembler() *LobReassembler {
	return &LobReassembler{
		active:  make(map[LobId]*LobData),
		orphans: make(map[LobId][]orphanChunk),
	}
}

// NewLobReassemblerWithSpill starts a reassembler that spills an
// individual LOB's orphan pool to dir once it exceeds thresholdBytes.
func NewLobReassemblerWithSpill(dir string, thresholdBytes int64) *LobReassembler {
	r := NewLobReassembler()
	r.SpillDir = dir
	r.SpillThresholdBytes = thresholdBytes
	return r
}

func (r *LobReassembler) orphanPoolBytes(lob LobId) int64 {
	var n int64
	for _, o := range r.orphans[lob] {
		if o.SpillPath == "" {
			n += o.size
		}
	}
	return n
}

// spill xz-compresses chunk.Data to a fresh file under SpillDir and
// replaces its in-memory bytes with the path, freeing the buffer.
func (r *LobReassembler) spill(lob LobId, chunk *orphanChunk) error {
	seq := r.spillSeq.Add(1)
	name := fmt.Sprintf("lob-%x-%d.xz", lob[:], seq)
	path := filepath.Join(r.SpillDir, name)
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	zw, err := xz.NewWriter(f)
	if err != nil {
		return err
	}
	if _, err := zw.Write(chunk.Data); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	chunk.SpillPath = path
	chunk.size = int64(len(chunk.Data))
	chunk.Data = nil
	return nil
}

func (r *LobReassembler) unspill(chunk orphanChunk) ([]byte, error) {
	if chunk.SpillPath == "" {
		return chunk.Data, nil
	}
	f, err := os.Open(chunk.SpillPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	zr, err := xz.NewReader(f)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, zr); err != nil {
		return nil, err
	}
	os.Remove(chunk.SpillPath)
	return buf.Bytes(), nil
}

func (r *LobReassembler) ensure(lob LobId, pageSize, sizePages, sizeRest uint32) *LobData {
	d, ok := r.active[lob]
	if !ok {
		d = &LobData{
			PageSize:  pageSize,
			SizePages: sizePages,
			SizeRest:  sizeRest,
			PageNo:    make(map[uint32]uint32),
			Chunks:    make(map[lobChunkKey][]byte),
		}
		r.active[lob] = d
	}
	if pageSize != 0 {
		d.PageSize = pageSize
	}
	if sizePages != 0 {
		d.SizePages = sizePages
	}
	return d
}

// AddIndexPage records a 10.x index-block page entry and reattaches any
// orphaned data chunks it unblocks.
func (r *LobReassembler) AddIndexPage(v LobVector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.ensure(v.Lob, v.PageSize, v.SizePages, v.SizeRest)
	d.IndexSeen = true
	d.PageNo[v.Dba] = v.PageNo
	if pending := r.orphans[v.Lob]; len(pending) > 0 {
		kept := pending[:0]
		for _, o := range pending {
			if o.Dba != v.Dba {
				kept = append(kept, o)
				continue
			}
			data, err := r.unspill(o)
			if err != nil {
				rlog.Warnf(int(ErrLobIncomplete), "lob %x: failed to read spilled chunk: %v", v.Lob[:], err)
				continue
			}
			d.Chunks[lobChunkKey{Dba: o.Dba, Offset: 0}] = data
			d.DataSeen.Set(v.PageNo, true)
		}
		r.orphans[v.Lob] = kept
	}
}

// AddDataChunk records a 26.x data-block byte chunk, parking it as an
// orphan if the page_no index entry for its dba hasn't arrived yet. Once
// the orphan pool for this LOB id grows past SpillThresholdBytes, the
// oldest entries are xz-compressed out to SpillDir to bound memory use.
func (r *LobReassembler) AddDataChunk(v LobVector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.active[v.Lob]
	if !ok || !d.hasPage(v.Dba) {
		chunk := orphanChunk{Dba: v.Dba, Data: v.Data, size: int64(len(v.Data))}
		r.orphans[v.Lob] = append(r.orphans[v.Lob], chunk)
		if !ok {
			r.ensure(v.Lob, 0, 0, 0)
		}
		r.maybeSpill(v.Lob)
		return
	}
	d.Chunks[lobChunkKey{Dba: v.Dba, Offset: v.Offset}] = v.Data
	d.DataSeen.Set(d.PageNo[v.Dba], true)
}

// maybeSpill pushes in-memory orphan chunks for lob out to disk, oldest
// first, until the pool is back under SpillThresholdBytes.
func (r *LobReassembler) maybeSpill(lob LobId) {
	if r.SpillDir == "" || r.SpillThresholdBytes <= 0 {
		return
	}
	pending := r.orphans[lob]
	for i := range pending {
		if r.orphanPoolBytes(lob) <= r.SpillThresholdBytes {
			break
		}
		if pending[i].SpillPath != "" || pending[i].Data == nil {
			continue
		}
		if err := r.spill(lob, &pending[i]); err != nil {
			rlog.Warnf(int(ErrLobIncomplete), "lob %x: failed to spill orphan chunk: %v", lob[:], err)
		}
	}
}

func (d *LobData) hasPage(dba uint32) bool {
	_, ok := d.PageNo[dba]
	return ok
}

// Complete reports whether every page_no in [0, SizePages) has a chunk
// recorded and, if so, returns the reassembled byte stream in page_no
// order. Orphaned chunks that never found a matching index page are
// reported via ErrLobIncomplete so the caller can decide whether to emit
// a best-effort partial value or drop it.
func (r *LobReassembler) Complete(lob LobId) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.active[lob]
	if !ok {
		return nil, LobErr(ErrLobMissingPage, "complete called for unknown lob id")
	}
	if !d.IndexSeen {
		return nil, LobErr(ErrLobMissingPage, "no index page recorded for lob")
	}
	if d.DataSeen.Count() < uint(d.SizePages) {
		return nil, LobErr(ErrLobIncomplete, "data chunk not yet arrived for indexed page")
	}
	dbaByPage := make(map[uint32]uint32, len(d.PageNo))
	for dba, pageNo := range d.PageNo {
		dbaByPage[pageNo] = dba
	}
	out := make([]byte, 0, d.TotalSize())
	for pageNo := uint32(0); pageNo < d.SizePages; pageNo++ {
		dba, ok := dbaByPage[pageNo]
		if !ok {
			return nil, LobErr(ErrLobMissingPage, "no index entry for lob page")
		}
		chunk, ok := d.Chunks[lobChunkKey{Dba: dba, Offset: 0}]
		if !ok {
			return nil, LobErr(ErrLobIncomplete, "data chunk not yet arrived for indexed page")
		}
		out = append(out, chunk...)
	}
	if uint64(len(out)) != d.TotalSize() && d.SizeRest > 0 {
		// trailing partial page beyond the full-page run
		if dba, ok := dbaByPage[d.SizePages]; ok {
			if rest, ok := d.Chunks[lobChunkKey{Dba: dba, Offset: 0}]; ok {
				out = append(out, rest...)
			}
		}
	}
	if uint64(len(out)) != d.TotalSize() {
		return out, LobErr(ErrLobSizeMismatch, "reassembled lob size does not match declared size")
	}
	delete(r.active, lob)
	delete(r.orphans, lob)
	return out, nil
}

// InRowValue extracts a LOB value stored entirely in the row (small
// SecureFile LOBs, or any BasicFile LOB under the in-row threshold): the
// column's raw bytes already are the value.
func InRowValue(col ColumnImage) ([]byte, bool) {
	if col.Null {
		return nil, false
	}
	return col.Raw, true
}

// InValueValue extracts a 12c+ in-value LOB: the column carries a locator
// whose Inline field may already hold the whole value, short-circuiting
// the index/data reassembly path entirely.
func InValueValue(col ColumnImage) ([]byte, LobId, bool) {
	loc, ok := DecodeLobLocator(col.Raw)
	if !ok {
		return nil, LobId{}, false
	}
	if loc.Inline != nil {
		return loc.Inline, loc.Lob, true
	}
	return nil, loc.Lob, false
}
