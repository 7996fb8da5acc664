package loadbalance

import (
	"sync/atomic"
)

// RoundRobin hands out indices in order and wraps around. The cursor always points at
// the candidate that the next pick returns.
//
// Next is lock-free: concurrent picks race on a compare-and-swap, so each index is handed
// out exactly once per cycle even when many lookups share a read lock.
type RoundRobin struct {
	cursor atomic.Int64
}

func NewRoundRobin() *RoundRobin {
	return &RoundRobin{}
}

func (b *RoundRobin) Next(n int) int {
	if n <= 0 {
		return -1
	}
	for {
		old := b.cursor.Load()
		cur := old
		if cur >= int64(n) {
			cur = 0
		}
		if b.cursor.CompareAndSwap(old, (cur+1)%int64(n)) {
			return int(cur)
		}
	}
}

// Removed keeps the sequence intact: candidates before the cursor shift it back by one,
// and a cursor past the end wraps to the start.
func (b *RoundRobin) Removed(idx, n int) {
	cur := b.cursor.Load()
	if int64(idx) < cur {
		cur--
	}
	if cur >= int64(n) {
		cur = 0
	}
	b.cursor.Store(cur)
}

// Cursor returns the index the next pick will return.
func (b *RoundRobin) Cursor() int {
	return int(b.cursor.Load())
}

func (b *RoundRobin) Name() string {
	return "RoundRobin"
}
