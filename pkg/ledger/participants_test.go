package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunkerwars/engine/pkg/ledger"
)

func TestJoin_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		player string
		bunker uint8
		amount uint64
		want   error
	}{
		{"empty id", "", 1, 1_000, ledger.ErrValidation},
		{"bunker zero", "alice", 0, 1_000, ledger.ErrInvalidBunker},
		{"bunker out of range", "alice", 6, 1_000, ledger.ErrInvalidBunker},
		{"below minimum", "alice", 1, 99, ledger.ErrBelowMinimum},
		{"beyond max amount", "alice", 1, ledger.MaxAmount + 1, ledger.ErrAmountRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.engine.Join(ctx, tt.player, tt.bunker, tt.amount)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestJoin_RefusedWithoutWalletFunds(t *testing.T) {
	h := newHarness(t)

	err := h.engine.Join(context.Background(), "broke", 1, 1_000)
	require.ErrorIs(t, err, ledger.ErrCustodyRefused)

	// The refused join left no trace.
	_, err = h.engine.GetPlayer(context.Background(), "broke")
	assert.ErrorIs(t, err, ledger.ErrNoPlayer)
	b, err := h.engine.GetBunker(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, b.Members)
}

func TestJoin_DoublePositionRejected(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)

	h.custodian.Credit("alice", 1_000)
	err := h.engine.Join(context.Background(), "alice", 2, 1_000)
	assert.ErrorIs(t, err, ledger.ErrAlreadyPositioned)
}

func TestJoin_BlockedInResolveGap(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)
	h.openRound()
	h.closeRound()

	h.custodian.Credit("bob", 1_000)
	err := h.engine.Join(context.Background(), "bob", 2, 1_000)
	assert.ErrorIs(t, err, ledger.ErrResolveGap)
}

func TestJoin_ClaimStartsAtStake(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 2_500)

	assert.Equal(t, uint64(2_500), h.claim("alice"))
	assert.Equal(t, uint64(2_500), h.custodyBalance(1))

	b, err := h.engine.GetBunker(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500), b.Nominal)
	assert.Equal(t, 1, b.Members)
}

func TestTopUp_FoldsAccruedClaim(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 10_000)

	round := h.openRound()
	h.closeRound()
	var attacks, defenses [ledger.BunkerCount]uint64
	attacks[0] = 2_000
	h.resolve(round, attacks, defenses)

	// Damage 2000 then +1000 emission: claim is 9000.
	require.Equal(t, uint64(9_000), h.claim("alice"))

	h.custodian.Credit("alice", 1_000)
	require.NoError(t, h.engine.TopUp(context.Background(), "alice", 1_000))

	// Claim folded plus fresh stake, tracked exactly by custody.
	assert.Equal(t, uint64(10_000), h.claim("alice"))
	assert.Equal(t, uint64(10_000), h.custodyBalance(1))

	p, err := h.engine.GetPlayer(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(10_000), p.Nominal)

	b, err := h.engine.GetBunker(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, p.DepositIndex, b.ShareIndex)
}

func TestTopUp_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.ErrorIs(t, h.engine.TopUp(ctx, "ghost", 500), ledger.ErrNoPlayer)
	assert.ErrorIs(t, h.engine.TopUp(ctx, "ghost", 0), ledger.ErrZeroAmount)

	h.join("alice", 1, 1_000)
	round := h.openRound()
	h.act("alice", round, 2)

	h.custodian.Credit("alice", 500)
	assert.ErrorIs(t, h.engine.TopUp(ctx, "alice", 500), ledger.ErrAlreadyActed)
}

func TestRelocate_MovesWholeClaim(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 5_000)
	round := h.openRound()

	require.NoError(t, h.engine.Relocate(context.Background(), "alice", 2))

	p, err := h.engine.GetPlayer(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint8(2), p.Bunker)
	assert.Equal(t, uint64(5_000), p.Claim)
	assert.Equal(t, round, p.LastActedRound)

	assert.Zero(t, h.custodyBalance(1))
	assert.Equal(t, uint64(5_000), h.custodyBalance(2))

	from, err := h.engine.GetBunker(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, from.Members)
	assert.Zero(t, from.Nominal)
	to, err := h.engine.GetBunker(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 1, to.Members)
	assert.Equal(t, uint64(5_000), to.Nominal)
}

func TestRelocate_CountsAsTheRoundAction(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 5_000)
	round := h.openRound()

	require.NoError(t, h.engine.Relocate(context.Background(), "alice", 3))

	// The move spent the action: no second move, no attack.
	err := h.engine.Relocate(context.Background(), "alice", 1)
	assert.ErrorIs(t, err, ledger.ErrAlreadyActed)
	sig := h.signals("alice", round, 2)
	err = h.engine.SubmitAction(context.Background(), "alice", h.verifier.Prove(sig), sig)
	assert.ErrorIs(t, err, ledger.ErrAlreadyActed)
}

func TestRelocate_Preconditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.join("alice", 1, 5_000)

	// No open round yet: the game is still in SETUP.
	assert.ErrorIs(t, h.engine.Relocate(ctx, "alice", 2), ledger.ErrWrongPhase)

	h.openRound()
	assert.ErrorIs(t, h.engine.Relocate(ctx, "alice", 4), ledger.ErrNotAdjacent)
	assert.ErrorIs(t, h.engine.Relocate(ctx, "alice", 0), ledger.ErrInvalidBunker)
	assert.ErrorIs(t, h.engine.Relocate(ctx, "ghost", 2), ledger.ErrNoPlayer)

	// Window closed: relocation is an action and needs an open round.
	h.closeRound()
	assert.ErrorIs(t, h.engine.Relocate(ctx, "alice", 2), ledger.ErrRoundNotOpen)
}

func TestExit_PaysClaimToWallet(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 5_000)
	require.Zero(t, h.custodian.WalletBalance("alice"))

	paid, err := h.engine.Exit(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000), paid)
	assert.Equal(t, uint64(5_000), h.custodian.WalletBalance("alice"))
	assert.Zero(t, h.custodyBalance(1))

	// Record cleared; a second exit has nothing to act on.
	_, err = h.engine.Exit(context.Background(), "alice")
	assert.ErrorIs(t, err, ledger.ErrNotPositioned)
}

func TestExit_LastMemberAbsorbsDust(t *testing.T) {
	// One token in the reserve: the round opens, but the emission share
	// rounds to zero, leaving combat as the only balance change.
	h := newHarness(t, withReserve(1))
	h.join("alice", 1, 1_000)
	h.join("bob", 1, 500)

	round := h.openRound()
	h.closeRound()
	var attacks, defenses [ledger.BunkerCount]uint64
	attacks[0] = 6_001
	defenses[0] = 6_000
	h.resolve(round, attacks, defenses)

	// Damage 1 on custody 1500 truncates the index; claims round down.
	require.Equal(t, uint64(1_499), h.custodyBalance(1))
	aliceClaim := h.claim("alice")
	bobClaim := h.claim("bob")
	assert.Equal(t, uint64(999), aliceClaim)
	assert.Equal(t, uint64(499), bobClaim)
	assert.Less(t, aliceClaim+bobClaim, uint64(1_500))

	paid, err := h.engine.Exit(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(999), paid)

	// Bob leaves last and takes the vault remainder, dust included.
	paid, err = h.engine.Exit(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, uint64(500), paid)
	assert.Zero(t, h.custodyBalance(1))
}

func TestExit_BlockedInResolveGapOnly(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)
	h.join("bob", 2, 1_000)
	round := h.openRound()
	h.closeRound()

	_, err := h.engine.Exit(context.Background(), "alice")
	require.ErrorIs(t, err, ledger.ErrResolveGap)

	h.resolve(round, [ledger.BunkerCount]uint64{}, [ledger.BunkerCount]uint64{})
	_, err = h.engine.Exit(context.Background(), "alice")
	assert.NoError(t, err)

	// Halted games still let players leave.
	require.NoError(t, h.engine.Halt(context.Background(), "maintenance"))
	paid, err := h.engine.Exit(context.Background(), "bob")
	require.NoError(t, err)
	assert.NotZero(t, paid)
}
