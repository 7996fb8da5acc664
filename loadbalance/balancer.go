// Package loadbalance provides the selection cursor the registry uses to spread lookups
// across the providers of one service.
//
// A Balancer never sees the providers themselves, only how many there are. The owner
// keeps the provider list and reports removals so the cursor can stay aligned with it.
package loadbalance

// Balancer selects one index out of n candidates.
type Balancer interface {
	// Next returns the index to use for this pick, or -1 when n is 0.
	// Called on every lookup, possibly from many goroutines at once.
	Next(n int) int

	// Removed tells the balancer that the candidate at idx was removed and n remain.
	// The caller must exclude concurrent Next calls.
	Removed(idx, n int)

	// Name returns the strategy name (for logging/debugging).
	Name() string
}
