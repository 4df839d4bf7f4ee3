// Package resources abstracts the encrypted attack/defense token ledger.
// The engine only forwards opaque mint payloads and orders the
// end-of-round burn; it never reads hidden balances. Decrypted totals come
// back through the oracle's resolve call, not through this interface.
package resources

import "context"

type Ledger interface {
	// MintEncrypted credits an opaque encrypted amount to a bunker's hidden
	// attack or defense balance.
	MintEncrypted(ctx context.Context, bunker uint8, payload string) error
	// BurnAll clears the hidden balances of the given bunkers.
	BurnAll(ctx context.Context, bunkers []uint8) error
}
