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
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/relaycdc/redocore/redo/rlog"
)

// BlockResultKind enumerates the outcomes of one ReadBlock call.
type BlockResultKind uint8

const (
	BlockOk BlockResultKind = iota
	BlockEmpty
	BlockWrongSequence
	BlockWrongSequenceSwitched
	BlockOverwritten
	BlockError
)

type BlockResult struct {
	Kind  BlockResultKind
	Bytes []byte
	Err   error
}

// redo block header magic, see spec.md §6.
var blockMagic = [2]byte{0x01, 0x22}

// loadSemaphore bounds concurrent redo-file opens, the same token-pool
// idiom as storage/limits.go's loadSemaphore (sized to GOMAXPROCS there;
// here sized small and fixed since only a handful of redo threads are
// ever tailed concurrently).
var loadSemaphore = make(chan struct{}, 4)

func init() {
	for i := 0; i < cap(loadSemaphore); i++ {
		loadSemaphore <- struct{}{}
	}
}

func acquireLoadSlot() func() {
	<-loadSemaphore
	return func() { loadSemaphore <- struct{}{} }
}

// ByteReader supplies redo blocks in order from one *os.File. Grounded on
// storage/persistence-files.go's FileStorage. A block-header mismatch is
// reported through BlockResult without re-reading, and the reader does not
// close or switch its file when the sequence advances.
type ByteReader struct {
	f           *os.File
	path        string
	blockSize   int
	sequence    uint32
	dbID        uint32
	activation  uint32
	watcher     *fsnotify.Watcher
	dir         string
}

// OpenRedoFile opens path, reads the first 512 bytes of block 0, and
// detects the block size (512/1024/4096) from its bytes 20-21.
func OpenRedoFile(path string) (*ByteReader, error) {
	release := acquireLoadSlot()
	defer release()

	f, err := os.Open(path)
	if err != nil {
		return nil, FramingError(ErrBadMagic, 0, "open redo file", err)
	}

	head := make([]byte, 4096)
	n, err := io.ReadFull(f, head[:512])
	if err != nil || n < 512 {
		f.Close()
		return nil, FramingError(ErrBadMagic, 0, "redo file shorter than minimum block header", err)
	}
	if head[0] != 0x00 || head[1] != 0x22 {
		f.Close()
		return nil, FramingError(ErrBadMagic, 0, "bad block-0 magic", nil)
	}
	blockSize := int(binary.LittleEndian.Uint16(head[20:22]))
	switch blockSize {
	case 512, 1024, 4096:
		// ok
	default:
		f.Close()
		return nil, FramingError(ErrBadMagic, 0, fmt.Sprintf("unsupported block size %d", blockSize), nil)
	}

	r := &ByteReader{f: f, path: path, blockSize: blockSize, dir: filepath.Dir(path)}
	return r, nil
}

// Close releases the file handle and any directory watch.
func (r *ByteReader) Close() error {
	if r.watcher != nil {
		r.watcher.Close()
	}
	return r.f.Close()
}

// BlockSize returns the detected block size for this redo file.
func (r *ByteReader) BlockSize() int { return r.blockSize }

// ReadBlock validates and returns one data block. sequence is the redo
// thread sequence this reader currently expects; blockIndex is 0-based
// counting from the first data block (block 2 on disk, after the two
// header blocks).
func (r *ByteReader) ReadBlock(sequence uint32, blockIndex uint32) BlockResult {
	buf := make([]byte, r.blockSize)
	offset := int64(r.blockSize) * int64(blockIndex+2)
	n, err := r.f.ReadAt(buf, offset)
	if err == io.EOF && n == 0 {
		return BlockResult{Kind: BlockEmpty}
	}
	if err != nil && err != io.EOF {
		return BlockResult{Kind: BlockError, Err: err}
	}
	if n < r.blockSize {
		return BlockResult{Kind: BlockEmpty}
	}
	if buf[0] != blockMagic[0] || buf[1] != blockMagic[1] {
		return BlockResult{Kind: BlockError, Err: FramingError(ErrBadMagic, offset, "bad data-block magic", nil)}
	}
	gotBlockNumber := binary.LittleEndian.Uint32(buf[4:8])
	if gotBlockNumber != blockIndex+2 {
		return BlockResult{Kind: BlockError, Err: FramingError(ErrBadBlockNumber, offset, "block-number field mismatch", nil)}
	}
	gotSeq := binary.LittleEndian.Uint32(buf[8:12])
	switch {
	case gotSeq == sequence:
		return BlockResult{Kind: BlockOk, Bytes: buf}
	case gotSeq == sequence+1:
		// online log switched underneath us; let the framer re-anchor.
		return BlockResult{Kind: BlockWrongSequenceSwitched, Bytes: buf}
	case gotSeq < sequence:
		return BlockResult{Kind: BlockOverwritten}
	default:
		return BlockResult{Kind: BlockWrongSequence}
	}
}

// WatchDirectory arms an fsnotify watch on the redo destination directory
// so the reader can be woken the instant the next sequence file appears,
// instead of polling. Part of the "re-read on block-header mismatch"
// support spec.md §4.1 asks for.
func (r *ByteReader) WatchDirectory() (<-chan fsnotify.Event, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(r.dir); err != nil {
		w.Close()
		return nil, err
	}
	r.watcher = w
	return w.Events, nil
}

// checksumBlock XORs all 64-bit words in the block, matching spec.md §6's
// "Checksum at offset 14 = XOR of all 64-bit words in the block, old
// checksum cleared first".
func checksumBlock(block []byte) uint16 {
	tmp := make([]byte, len(block))
	copy(tmp, block)
	tmp[14], tmp[15] = 0, 0
	var acc uint64
	for i := 0; i+8 <= len(tmp); i += 8 {
		acc ^= binary.LittleEndian.Uint64(tmp[i : i+8])
	}
	return uint16(acc) ^ uint16(acc>>16) ^ uint16(acc>>32) ^ uint16(acc>>48)
}

// VerifyChecksum reports whether block's stored checksum matches its
// computed one, logging a warning (not fatal on its own; the caller
// decides whether repeated mismatches escalate to a FramingError).
func VerifyChecksum(block []byte) bool {
	if len(block) < 16 {
		return false
	}
	stored := binary.LittleEndian.Uint16(block[14:16])
	got := checksumBlock(block)
	if stored != got {
		rlog.Warnf(int(ErrChecksumMismatch), "block checksum mismatch: stored=%04x computed=%04x", stored, got)
		return false
	}
	return true
}
