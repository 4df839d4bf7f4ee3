package ledger_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunkerwars/engine/pkg/events"
	"github.com/bunkerwars/engine/pkg/ledger"
)

// destroyBunkerTwo stakes five players into bunker 2 and wipes it in round
// one. Returns the player ids, oldest join first.
func destroyBunkerTwo(h *harness) []string {
	h.t.Helper()
	players := make([]string, 5)
	for i := range players {
		players[i] = fmt.Sprintf("p%d", i+1)
		h.join(players[i], 2, 200)
	}
	round := h.openRound()
	h.closeRound()
	var attacks, defenses [ledger.BunkerCount]uint64
	attacks[1] = 1_000
	h.resolve(round, attacks, defenses)
	return players
}

func TestCleanup_BatchedEvictionAndReinit(t *testing.T) {
	h := newHarness(t)
	players := destroyBunkerTwo(h)
	ctx := context.Background()

	// Zero batch size falls back to the configured limit of two.
	res, err := h.engine.Cleanup(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evicted)
	assert.Equal(t, 3, res.Remaining)
	assert.False(t, res.Reinitialized)

	// Eviction is LIFO: the newest members go first, and they get nothing.
	for _, id := range players[3:] {
		p, err := h.engine.GetPlayer(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, p.Bunker, "player %s should be evicted", id)
		assert.Zero(t, p.Claim)
		assert.Zero(t, h.custodian.WalletBalance(id))
	}
	p, err := h.engine.GetPlayer(ctx, players[0])
	require.NoError(t, err)
	assert.Equal(t, uint8(2), p.Bunker, "oldest member evicted last")

	// The cursor survives between batches.
	b, err := h.engine.GetBunker(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), b.Evicted)
	assert.True(t, b.Destroyed)

	// Progress is blocked until the sweep finishes.
	_, err = h.engine.OpenRound(ctx)
	require.ErrorIs(t, err, ledger.ErrCleanupPending)

	res, err = h.engine.Cleanup(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Evicted)
	assert.Equal(t, 1, res.Remaining)

	res, err = h.engine.Cleanup(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Evicted)
	assert.Zero(t, res.Remaining)
	assert.True(t, res.Reinitialized)

	// Fresh bunker: base index, clean cursor, joinable again.
	b, err = h.engine.GetBunker(ctx, 2)
	require.NoError(t, err)
	assert.False(t, b.Destroyed)
	assert.Equal(t, ledger.IndexBase, b.ShareIndex)
	assert.Zero(t, b.Nominal)
	assert.Zero(t, b.Evicted)
	assert.Zero(t, b.Members)

	require.Equal(t, uint64(2), h.openRound())
	h.join("newcomer", 2, 500)
	assert.Equal(t, uint64(500), h.claim("newcomer"))

	types := h.eventTypes()
	assert.Contains(t, types, events.TypeCleanupProgress)
	assert.Contains(t, types, events.TypeBunkerReinitialized)
}

func TestCleanup_OnlyDestroyedBunkers(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)
	h.openRound()
	ctx := context.Background()

	_, err := h.engine.Cleanup(ctx, 1, 10)
	assert.ErrorIs(t, err, ledger.ErrBunkerAlive)
	_, err = h.engine.Cleanup(ctx, 0, 10)
	assert.ErrorIs(t, err, ledger.ErrInvalidBunker)
	_, err = h.engine.Cleanup(ctx, 6, 10)
	assert.ErrorIs(t, err, ledger.ErrInvalidBunker)
}

func TestCleanup_EvictionKeepsActionStamp(t *testing.T) {
	h := newHarness(t)

	// p5 acts in round one before the bunker dies.
	players := make([]string, 5)
	for i := range players {
		players[i] = fmt.Sprintf("p%d", i+1)
		h.join(players[i], 2, 200)
	}
	round := h.openRound()
	h.act("p5", round, 1)
	h.closeRound()
	var attacks, defenses [ledger.BunkerCount]uint64
	attacks[1] = 1_000
	h.resolve(round, attacks, defenses)

	for i := 0; i < 3; i++ {
		_, err := h.engine.Cleanup(context.Background(), 2, 2)
		require.NoError(t, err)
	}

	p, err := h.engine.GetPlayer(context.Background(), "p5")
	require.NoError(t, err)
	assert.Zero(t, p.Bunker)
	assert.Equal(t, round, p.LastActedRound)
}
