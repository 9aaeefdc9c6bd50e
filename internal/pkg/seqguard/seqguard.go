// Package seqguard discards out-of-order responses for a cached collection.
// Every request takes a ticket from Next; only the holder of the most recent
// ticket may commit, so a slow response can never overwrite a newer one.
package seqguard

import "sync"

type Guard struct {
	mu     sync.Mutex
	issued uint64
	closed bool
}

func New() *Guard { return &Guard{} }

// Next issues a ticket that supersedes every ticket issued before it.
func (g *Guard) Next() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	return g.issued
}

// Invalidate supersedes all outstanding tickets without issuing a new one.
func (g *Guard) Invalidate() {
	g.mu.Lock()
	g.issued++
	g.mu.Unlock()
}

// Current reports whether ticket is still the latest one issued.
func (g *Guard) Current(ticket uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.closed && ticket == g.issued
}

// Commit runs apply while holding the guard if ticket is still current and
// reports whether it ran. apply must not call back into the guard.
func (g *Guard) Commit(ticket uint64, apply func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || ticket != g.issued {
		return false
	}
	apply()
	return true
}

// Close rejects every later Commit.
func (g *Guard) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
}
