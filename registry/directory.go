package registry

import (
	"sort"
	"sync"

	"mini-soa/loadbalance"
	"mini-soa/signature"
)

// Result tells whether a directory mutation changed anything.
type Result int

const (
	NoOp Result = iota
	Registered
	Deregistered
)

func (r Result) String() string {
	switch r {
	case Registered:
		return "registered"
	case Deregistered:
		return "deregistered"
	}
	return "no-op"
}

// entry binds a service name to its contract and its providers in registration order.
type entry struct {
	sig       signature.Signature
	providers []Endpoint
	balancer  loadbalance.Balancer
}

func (e *entry) index(ep Endpoint) int {
	for i, p := range e.providers {
		if p == ep {
			return i
		}
	}
	return -1
}

// Entry is a read-only snapshot of one directory entry.
type Entry struct {
	Signature signature.Signature
	Providers []Endpoint
}

// Directory is the concurrent service table. Mutations take the write lock; lookups share
// the read lock and advance the per-entry cursor without blocking each other.
type Directory struct {
	mu          sync.RWMutex
	entries     map[string]*entry
	newBalancer func() loadbalance.Balancer
}

func NewDirectory() *Directory {
	return &Directory{
		entries:     make(map[string]*entry),
		newBalancer: func() loadbalance.Balancer { return loadbalance.NewRoundRobin() },
	}
}

// Register adds ep as a provider of sig. A name is bound to the signature of its first
// registration until its last provider leaves.
func (d *Directory) Register(sig signature.Signature, ep Endpoint) (Result, error) {
	if !sig.Valid() {
		return NoOp, ErrInvalidSignature
	}
	if !ep.Valid() {
		return NoOp, ErrInvalidEndpoint
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[sig.Name()]
	if !ok {
		d.entries[sig.Name()] = &entry{sig: sig, providers: []Endpoint{ep}, balancer: d.newBalancer()}
		return Registered, nil
	}
	if !e.sig.Equal(sig) {
		return NoOp, conflict(e.sig)
	}
	if e.index(ep) >= 0 {
		return NoOp, nil
	}
	e.providers = append(e.providers, ep)
	return Registered, nil
}

// Deregister removes ep from the service named by sig. signature.Any removes ep everywhere.
func (d *Directory) Deregister(sig signature.Signature, ep Endpoint) (Result, error) {
	if sig.IsAny() {
		if d.DeregisterProvider(ep) > 0 {
			return Deregistered, nil
		}
		return NoOp, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries[sig.Name()]
	if !ok {
		return NoOp, nil
	}
	idx := e.index(ep)
	if idx < 0 {
		return NoOp, nil
	}
	d.remove(sig.Name(), e, idx)
	return Deregistered, nil
}

// DeregisterProvider removes ep from every entry and returns how many entries it left.
func (d *Directory) DeregisterProvider(ep Endpoint) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for name, e := range d.entries {
		if idx := e.index(ep); idx >= 0 {
			d.remove(name, e, idx)
			n++
		}
	}
	return n
}

// remove must be called with the write lock held.
func (d *Directory) remove(name string, e *entry, idx int) {
	e.providers = append(e.providers[:idx], e.providers[idx+1:]...)
	if len(e.providers) == 0 {
		delete(d.entries, name)
		return
	}
	e.balancer.Removed(idx, len(e.providers))
}

// Lookup returns the next provider of the service named by sig in round-robin order.
// A valid sig must match the registered contract; an invalid one is matched by name only.
func (d *Directory) Lookup(sig signature.Signature) (Endpoint, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[sig.Name()]
	if !ok {
		return Endpoint{}, ErrNotFound
	}
	if sig.Valid() && !e.sig.Equal(sig) {
		return Endpoint{}, conflict(e.sig)
	}
	return e.providers[e.balancer.Next(len(e.providers))], nil
}

// Services returns a snapshot of all entries sorted by name.
func (d *Directory) Services() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Entry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, Entry{Signature: e.sig, Providers: append([]Endpoint(nil), e.providers...)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Signature.Name() < out[j].Signature.Name() })
	return out
}

func conflict(registered signature.Signature) error {
	return &ConflictError{Registered: registered}
}
