package loadbalance

import (
	"sync"
	"testing"
)

var _ Balancer = (*RoundRobin)(nil)

func TestRoundRobin(t *testing.T) {
	b := NewRoundRobin()

	// Pick 3 times, should cycle through all candidates
	for want := 0; want < 3; want++ {
		if got := b.Next(3); got != want {
			t.Fatalf("expect %d, got %d", want, got)
		}
	}

	// Pick again, should wrap around to first
	if got := b.Next(3); got != 0 {
		t.Fatalf("expect wrap around to 0, got %d", got)
	}
}

func TestRoundRobinEmpty(t *testing.T) {
	if got := NewRoundRobin().Next(0); got != -1 {
		t.Fatalf("expect -1 for no candidates, got %d", got)
	}
}

// P1, P2, P3: after picking P1 remove P2, the sequence continues with P3 then P1.
func TestRoundRobinRemoveAfterCursor(t *testing.T) {
	providers := []string{"P1", "P2", "P3"}
	b := NewRoundRobin()

	if got := providers[b.Next(len(providers))]; got != "P1" {
		t.Fatalf("expect P1, got %s", got)
	}
	providers = append(providers[:1], providers[2:]...)
	b.Removed(1, len(providers))

	want := []string{"P3", "P1", "P3"}
	for _, w := range want {
		// cursor was at P2 (index 1); P3 moved into index 1
		if got := providers[b.Next(len(providers))]; got != w {
			t.Fatalf("expect %s, got %s", w, got)
		}
	}
}

// Removing a provider that was already handed out this cycle must not skip the next one.
func TestRoundRobinRemoveBeforeCursor(t *testing.T) {
	providers := []string{"P1", "P2", "P3"}
	b := NewRoundRobin()
	b.Next(3) // P1
	b.Next(3) // P2, cursor now at P3

	providers = providers[1:]
	b.Removed(0, len(providers))

	if got := providers[b.Next(len(providers))]; got != "P3" {
		t.Fatalf("expect P3, got %s", got)
	}
	if got := providers[b.Next(len(providers))]; got != "P2" {
		t.Fatalf("expect P2, got %s", got)
	}
}

func TestRoundRobinRemoveLast(t *testing.T) {
	b := NewRoundRobin()
	b.Next(3)
	b.Next(3) // cursor at index 2
	b.Removed(2, 2)
	if b.Cursor() != 0 {
		t.Fatalf("expect cursor to wrap to 0, got %d", b.Cursor())
	}
}

func TestRoundRobinConcurrent(t *testing.T) {
	const n, rounds = 4, 1000
	b := NewRoundRobin()
	counts := make([]int, n)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				idx := b.Next(n)
				mu.Lock()
				counts[idx]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for i, c := range counts {
		if c != 8*rounds/n {
			t.Fatalf("index %d picked %d times, expect %d", i, c, 8*rounds/n)
		}
	}
}
