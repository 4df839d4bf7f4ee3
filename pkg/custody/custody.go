// Package custody abstracts the token vaults that physically hold bunker
// stake. The engine trusts the custodian as the authoritative source of
// custodied balances; all clamping and the destruction threshold compare
// against BalanceOf, never against the engine's own nominal bookkeeping.
package custody

import "context"

// Well-known system accounts. The sink swallows forfeits and damage burns;
// the reserve account funds emission credits.
const (
	SinkAccount    = "sink"
	ReserveAccount = "reserve"
)

// Custodian moves stake between player wallets and the five bunker vaults.
// Implementations must reject, not truncate, moves the source cannot cover.
type Custodian interface {
	// Deposit moves amount from a wallet account into a bunker vault.
	Deposit(ctx context.Context, account string, bunker uint8, amount uint64) error
	// Transfer moves amount between two bunker vaults.
	Transfer(ctx context.Context, from, to uint8, amount uint64) error
	// Withdraw moves amount from a bunker vault to a wallet account.
	Withdraw(ctx context.Context, bunker uint8, account string, amount uint64) error
	// BalanceOf reports a vault's true custodied balance.
	BalanceOf(ctx context.Context, bunker uint8) (uint64, error)
}
