package ledger

import "math/big"

// Fixed-point share-index arithmetic. All ratios multiply before dividing,
// through big.Int intermediates, and truncate toward zero: rounding always
// biases toward the ledger, never toward an over-payment. The clamp to
// custody in trueClaim is the safety net for cumulative drift.

// mulDiv returns x*num/den truncated, and false on division by zero or a
// result outside MaxAmount.
func mulDiv(x, num, den uint64) (uint64, bool) {
	if den == 0 {
		return 0, false
	}
	r := new(big.Int).Mul(new(big.Int).SetUint64(x), new(big.Int).SetUint64(num))
	r.Quo(r, new(big.Int).SetUint64(den))
	if !r.IsUint64() {
		return 0, false
	}
	v := r.Uint64()
	if v > MaxAmount {
		return 0, false
	}
	return v, true
}

// damagedIndex scales a surviving bunker's index down by the damage ratio:
// index * (actual - damage) / actual. Caller guarantees 0 < damage < actual.
func damagedIndex(index, actual, damage uint64) uint64 {
	v, _ := mulDiv(index, actual-damage, actual)
	return v
}

// grownIndex scales an index up for an emission credit:
// index * (nominal + amount) / nominal. False when the result would leave
// the representable range; config validation keeps real deployments far
// away from that edge.
func grownIndex(index, nominal, amount uint64) (uint64, bool) {
	return mulDiv(index, nominal+amount, nominal)
}

// trueClaim is a participant's withdrawable amount right now:
// nominal * index / depositIndex, clamped to the bunker's custodied
// balance. Zero for destroyed bunkers and empty records.
func trueClaim(nominal, depositIndex, index, custody uint64) uint64 {
	if nominal == 0 || index == 0 || depositIndex == 0 {
		return 0
	}
	c, ok := mulDiv(nominal, index, depositIndex)
	if !ok || c > custody {
		return custody
	}
	return c
}
