// Package reserve abstracts the emission pool. Withdraw never fails: a
// shortfall returns whatever remains, down to zero, and the engine degrades
// gracefully instead of aborting the round.
package reserve

import (
	"context"
	"sync"
)

type Reserve interface {
	// Available reports the remaining emission funds.
	Available(ctx context.Context) (uint64, error)
	// Withdraw takes up to amount and returns what was actually taken:
	// min(amount, available).
	Withdraw(ctx context.Context, amount uint64) (uint64, error)
}

// Memory is a fixed pool seeded at boot, used in dev mode and tests.
type Memory struct {
	mu        sync.Mutex
	remaining uint64
}

func NewMemory(initial uint64) *Memory {
	return &Memory{remaining: initial}
}

var _ Reserve = (*Memory)(nil)

func (m *Memory) Available(_ context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining, nil
}

func (m *Memory) Withdraw(_ context.Context, amount uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount > m.remaining {
		amount = m.remaining
	}
	m.remaining -= amount
	return amount, nil
}
