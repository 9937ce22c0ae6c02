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

import "sync"

// BlockRing is the bounded ring buffer between the Reader goroutine and
// the single-threaded Parser, generalized from
// storage/shared_resource.go's COLD/SHARED/WRITE lazy-load coordination
// into a byte ring with two cursors (bufferStart, bufferEnd) guarded by
// one mutex and two condition variables — free-space-available (the
// Reader waits on it) and data-available (the Parser waits on it).
type BlockRing struct {
	mu         sync.Mutex
	notEmpty   *sync.Cond
	notFull    *sync.Cond
	blocks     [][]byte
	start, end int // filled == 0 means empty; filled == cap means full
	filled     int
	closed     bool
}

// NewBlockRing creates a ring with room for capacity whole blocks.
func NewBlockRing(capacity int) *BlockRing {
	r := &BlockRing{blocks: make([][]byte, capacity)}
	r.notEmpty = sync.NewCond(&r.mu)
	r.notFull = sync.NewCond(&r.mu)
	return r
}

// Push blocks until there is room, then enqueues one block. b is copied
// by the caller's choice — BlockRing stores the slice header as-is.
func (r *BlockRing) Push(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.filled == len(r.blocks) && !r.closed {
		r.notFull.Wait()
	}
	if r.closed {
		return
	}
	r.blocks[r.end] = b
	r.end = (r.end + 1) % len(r.blocks)
	r.filled++
	r.notEmpty.Signal()
}

// Pop blocks until a block is available or the ring is closed and
// drained, returning ok=false in the latter case.
func (r *BlockRing) Pop() (b []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for r.filled == 0 && !r.closed {
		r.notEmpty.Wait()
	}
	if r.filled == 0 {
		return nil, false
	}
	b = r.blocks[r.start]
	r.blocks[r.start] = nil
	r.start = (r.start + 1) % len(r.blocks)
	r.filled--
	r.notFull.Signal()
	return b, true
}

// Close unblocks any waiting Push/Pop once the reader reaches EOF
// (nothing further will ever be enqueued).
func (r *BlockRing) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.notEmpty.Broadcast()
	r.notFull.Broadcast()
}

// Len reports how many blocks are currently queued.
func (r *BlockRing) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.filled
}
