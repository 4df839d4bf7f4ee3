package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/proofs"
)

func TestSubmitAction_BindingRejectsForeignProofs(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)
	h.join("mallory", 2, 1_000)
	round := h.openRound()
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*proofs.Signals)
		want   error
	}{
		{"wrong tag", func(s *proofs.Signals) { s.Tag = "other/tag" }, ledger.ErrBadBinding},
		{"someone else's identity", func(s *proofs.Signals) { s.Player = "mallory" }, ledger.ErrBadBinding},
		{"stale round", func(s *proofs.Signals) { s.Round = round + 1 }, ledger.ErrBadBinding},
		{"stake above claim", func(s *proofs.Signals) { s.Stake = 1_001 }, ledger.ErrBadBinding},
		{"invalid target", func(s *proofs.Signals) { s.Target = 9 }, ledger.ErrInvalidBunker},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := h.signals("alice", round, 2)
			tt.mutate(&sig)
			// The proof itself is valid for the mutated signals: binding
			// must fail before the verifier ever runs.
			err := h.engine.SubmitAction(ctx, "alice", h.verifier.Prove(sig), sig)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// Nothing above should have marked alice as acted.
	sig := h.signals("alice", round, 2)
	sig.Stake = 1_000 // exactly the claim is fine
	require.NoError(t, h.engine.SubmitAction(ctx, "alice", h.verifier.Prove(sig), sig))
}

func TestSubmitAction_RejectsTamperedProof(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)
	round := h.openRound()

	sig := h.signals("alice", round, 2)
	proof := h.verifier.Prove(sig)
	proof[0] ^= 0xff
	err := h.engine.SubmitAction(context.Background(), "alice", proof, sig)
	assert.ErrorIs(t, err, ledger.ErrBadProof)
}

func TestSubmitAction_OncePerRound(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)
	round := h.openRound()
	ctx := context.Background()

	h.act("alice", round, 2)
	sig := h.signals("alice", round, 2)
	err := h.engine.SubmitAction(ctx, "alice", h.verifier.Prove(sig), sig)
	require.ErrorIs(t, err, ledger.ErrAlreadyActed)

	// Leaving and rejoining does not refresh the allowance: the stamp
	// outlives the position.
	_, err = h.engine.Exit(ctx, "alice")
	require.NoError(t, err)
	h.join("alice", 1, 1_000)
	sig = h.signals("alice", round, 2)
	err = h.engine.SubmitAction(ctx, "alice", h.verifier.Prove(sig), sig)
	assert.ErrorIs(t, err, ledger.ErrAlreadyActed)
}

func TestSubmitAction_MintFailureAbortsCleanly(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)
	round := h.openRound()
	ctx := context.Background()

	h.resources.FailMints(true)
	sig := h.signals("alice", round, 2)
	err := h.engine.SubmitAction(ctx, "alice", h.verifier.Prove(sig), sig)
	require.ErrorIs(t, err, ledger.ErrInternal)

	// The aborted action left no stamp; once minting recovers the same
	// round's action goes through.
	h.resources.FailMints(false)
	require.NoError(t, h.engine.SubmitAction(ctx, "alice", h.verifier.Prove(sig), sig))
	assert.Equal(t, 1, h.resources.MintedCount(1))
	assert.Equal(t, 1, h.resources.MintedCount(2))
}

func TestSubmitAction_PartialPayloads(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)
	h.join("bob", 2, 1_000)
	round := h.openRound()
	ctx := context.Background()

	// Attack only: nothing lands at home.
	sig := h.signals("alice", round, 2)
	sig.Defense = ""
	require.NoError(t, h.engine.SubmitAction(ctx, "alice", h.verifier.Prove(sig), sig))
	assert.Equal(t, 1, h.resources.MintedCount(2))
	assert.Zero(t, h.resources.MintedCount(1))

	// Defense only: the payload lands at bob's own bunker, not the target.
	sig = h.signals("bob", round, 1)
	sig.Attack = ""
	require.NoError(t, h.engine.SubmitAction(ctx, "bob", h.verifier.Prove(sig), sig))
	assert.Equal(t, 2, h.resources.MintedCount(2))
	assert.Zero(t, h.resources.MintedCount(1))
}

func TestSubmitAction_StateGates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.join("alice", 1, 1_000)

	// SETUP: no rounds yet.
	sig := h.signals("alice", 1, 2)
	err := h.engine.SubmitAction(ctx, "alice", h.verifier.Prove(sig), sig)
	assert.ErrorIs(t, err, ledger.ErrWrongPhase)

	round := h.openRound()

	sig = h.signals("ghost", round, 2)
	err = h.engine.SubmitAction(ctx, "ghost", h.verifier.Prove(sig), sig)
	assert.ErrorIs(t, err, ledger.ErrNoPlayer)

	// Window closed: the action window is gone.
	h.closeRound()
	sig = h.signals("alice", round, 2)
	err = h.engine.SubmitAction(ctx, "alice", h.verifier.Prove(sig), sig)
	assert.ErrorIs(t, err, ledger.ErrRoundNotOpen)
}

func TestSubmitAction_DestroyedTargetRejected(t *testing.T) {
	h := newHarness(t)
	h.join("alice", 1, 1_000)
	round := h.openRound()
	h.closeRound()

	// Any positive damage destroys an empty bunker: custody is zero.
	var attacks, defenses [ledger.BunkerCount]uint64
	attacks[3] = 50
	h.resolve(round, attacks, defenses)

	b, err := h.engine.GetBunker(context.Background(), 4)
	require.NoError(t, err)
	require.True(t, b.Destroyed)

	// Empty destroyed bunkers do not block the next round, but they are
	// not valid targets until reinitialized.
	round = h.openRound()
	sig := h.signals("alice", round, 4)
	err = h.engine.SubmitAction(context.Background(), "alice", h.verifier.Prove(sig), sig)
	assert.ErrorIs(t, err, ledger.ErrBunkerDestroyed)
}
