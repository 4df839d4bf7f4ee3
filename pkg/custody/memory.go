package custody

import (
	"context"
	"fmt"
	"sync"
)

// Memory is the embedded custodian used in dev mode and tests: wallets,
// vaults, and the sink live in one process. System accounts are unbounded:
// deposits drawn from the reserve account always succeed, and the sink
// absorbs whatever is burned into it.
type Memory struct {
	mu      sync.Mutex
	wallets map[string]uint64
	vaults  map[uint8]uint64
	sunk    uint64
}

func NewMemory() *Memory {
	return &Memory{
		wallets: make(map[string]uint64),
		vaults:  make(map[uint8]uint64),
	}
}

var _ Custodian = (*Memory)(nil)

func (m *Memory) Deposit(_ context.Context, account string, bunker uint8, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account != ReserveAccount {
		if m.wallets[account] < amount {
			return fmt.Errorf("wallet %s holds %d, needs %d", account, m.wallets[account], amount)
		}
		m.wallets[account] -= amount
	}
	m.vaults[bunker] += amount
	return nil
}

func (m *Memory) Transfer(_ context.Context, from, to uint8, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vaults[from] < amount {
		return fmt.Errorf("vault %d holds %d, needs %d", from, m.vaults[from], amount)
	}
	m.vaults[from] -= amount
	m.vaults[to] += amount
	return nil
}

func (m *Memory) Withdraw(_ context.Context, bunker uint8, account string, amount uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vaults[bunker] < amount {
		return fmt.Errorf("vault %d holds %d, needs %d", bunker, m.vaults[bunker], amount)
	}
	m.vaults[bunker] -= amount
	if account == SinkAccount {
		m.sunk += amount
		return nil
	}
	m.wallets[account] += amount
	return nil
}

func (m *Memory) BalanceOf(_ context.Context, bunker uint8) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vaults[bunker], nil
}

// Credit funds a wallet out of thin air. Backs the dev faucet and test setup.
func (m *Memory) Credit(account string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[account] += amount
}

// WalletBalance reports a wallet's spendable balance.
func (m *Memory) WalletBalance(account string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallets[account]
}

// Sunk reports the cumulative amount burned to the sink.
func (m *Memory) Sunk() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sunk
}
