package exchange

import "sync"

// marketLocks serializes all writers of one market: order admission,
// its matching pass, and settlement. Different markets proceed in
// parallel; cross-market account contention is left to the store's
// optimistic transactions.
type marketLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMarketLocks() *marketLocks {
	return &marketLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the market's mutex, creating it on first use. Locks are
// never removed; the universe of markets is small and append-only.
func (m *marketLocks) Lock(marketID string) func() {
	m.mu.Lock()
	l, ok := m.locks[marketID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[marketID] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}
