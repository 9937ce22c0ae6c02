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

// MemTracker accounts for a single byte budget, fixed at NewMemTracker:
// one running total checked by Reserve, with no separate pool for
// memory-chunks-write-buffer-max (ring + flush staging). Grounded on
// storage/cache.go's CacheManager: a single goroutine drains an
// op-channel of add/release requests so accounting never needs its own
// lock on the hot decode path, generalized from "evict the coldest
// cached column" to "refuse to grow further and signal backpressure".
type MemTracker struct {
	opChan chan memOp
	stats  chan chan memStats
}

type memOp struct {
	delta int64
	done  chan bool // true if the allocation was accepted
}

type memStats struct {
	used   int64
	budget int64
}

// NewMemTracker starts the tracker's single accounting goroutine with the
// given budget (memory-max-mb, in bytes).
func NewMemTracker(budgetBytes int64) *MemTracker {
	m := &MemTracker{
		opChan: make(chan memOp, 256),
		stats:  make(chan chan memStats),
	}
	go m.run(budgetBytes)
	return m
}

func (m *MemTracker) run(budget int64) {
	var used int64
	for {
		select {
		case op, ok := <-m.opChan:
			if !ok {
				return
			}
			if op.delta > 0 && used+op.delta > budget {
				op.done <- false
				continue
			}
			used += op.delta
			if used < 0 {
				used = 0
			}
			op.done <- true
		case reply := <-m.stats:
			reply <- memStats{used: used, budget: budget}
		}
	}
}

// Reserve requests delta bytes of headroom (positive) or releases it
// (negative). Returns false when a positive delta would exceed the
// budget — the caller (the Reader goroutine, via the token-semaphore
// idiom shared with storage/limits.go's loadSemaphore) should pause
// reading redo blocks until the Transaction Buffer drains.
func (m *MemTracker) Reserve(delta int64) bool {
	done := make(chan bool, 1)
	m.opChan <- memOp{delta: delta, done: done}
	return <-done
}

// Stats reports current usage against budget.
func (m *MemTracker) Stats() (used, budget int64) {
	reply := make(chan memStats, 1)
	m.stats <- reply
	s := <-reply
	return s.used, s.budget
}

// Close stops the accounting goroutine.
func (m *MemTracker) Close() { close(m.opChan) }
