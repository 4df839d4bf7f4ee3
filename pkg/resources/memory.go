package resources

import (
	"context"
	"errors"
	"sync"
)

var errMintRefused = errors.New("mint refused")

// Memory records mint payloads per bunker without decrypting anything.
// Tests assert on counts; a real deployment swaps in the encrypted ledger.
type Memory struct {
	mu      sync.Mutex
	minted  map[uint8][]string
	burns   int
	failAll bool
}

func NewMemory() *Memory {
	return &Memory{minted: make(map[uint8][]string)}
}

var _ Ledger = (*Memory)(nil)

func (m *Memory) MintEncrypted(_ context.Context, bunker uint8, payload string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errMintRefused
	}
	m.minted[bunker] = append(m.minted[bunker], payload)
	return nil
}

func (m *Memory) BurnAll(_ context.Context, bunkers []uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range bunkers {
		delete(m.minted, b)
	}
	m.burns++
	return nil
}

// MintedCount reports how many payloads a bunker holds since the last burn.
func (m *Memory) MintedCount(bunker uint8) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.minted[bunker])
}

// Burns reports how many BurnAll sweeps have run.
func (m *Memory) Burns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.burns
}

// FailMints makes every subsequent mint return an error. Tests use it to
// prove a failed mint aborts the whole action.
func (m *Memory) FailMints(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAll = fail
}
