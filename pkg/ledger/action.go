package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/events"
	"github.com/bunkerwars/engine/pkg/proofs"
)

// SubmitAction spends the player's one privileged action for the open round.
// The signals must bind the proof to this player, this round, the configured
// tag, and a stake no larger than the true current claim; a proof minted for
// another player or round cannot be replayed here. Only after the binding
// holds is the proof handed to the verifier. On success the encrypted attack
// payload is minted to the target bunker, the defense payload to the
// player's own, and the last-acted stamp is set. Any failure, including a
// refused mint, leaves the ledger untouched.
func (e *Engine) SubmitAction(ctx context.Context, player string, proof []byte, signals proofs.Signals) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.begin()

	if e.st.Meta.Phase != PhaseActive {
		return fmt.Errorf("%w: %s", ErrWrongPhase, e.st.Meta.Phase)
	}
	r, open := e.openRound(t.now)
	if !open {
		return ErrRoundNotOpen
	}
	p := e.st.Players[player]
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNoPlayer, player)
	}
	if !p.Positioned() {
		return fmt.Errorf("%w: %s", ErrNotPositioned, player)
	}
	if p.LastActedRound == r.Number {
		return fmt.Errorf("%w: round %d", ErrAlreadyActed, r.Number)
	}
	if !ValidBunker(signals.Target) {
		return fmt.Errorf("%w: %d", ErrInvalidBunker, signals.Target)
	}
	if e.st.Bunkers[signals.Target].Destroyed() {
		return fmt.Errorf("%w: bunker %d", ErrBunkerDestroyed, signals.Target)
	}

	if signals.Tag != e.rules.ActionTag {
		return fmt.Errorf("%w: unexpected tag", ErrBadBinding)
	}
	if signals.Player != player {
		return fmt.Errorf("%w: signals name %q", ErrBadBinding, signals.Player)
	}
	if signals.Round != r.Number {
		return fmt.Errorf("%w: signals for round %d, open round is %d", ErrBadBinding, signals.Round, r.Number)
	}
	claim, err := e.claimOf(ctx, p)
	if err != nil {
		return err
	}
	if signals.Stake > claim {
		return fmt.Errorf("%w: staked %d exceeds claim %d", ErrBadBinding, signals.Stake, claim)
	}

	ok, err := e.verifier.Verify(ctx, proof, signals)
	if err != nil {
		return fmt.Errorf("%w: proof verifier: %v", ErrInternal, err)
	}
	if !ok {
		return ErrBadProof
	}

	if signals.Attack != "" {
		if err := e.resources.MintEncrypted(ctx, signals.Target, signals.Attack); err != nil {
			return fmt.Errorf("%w: attack mint: %v", ErrInternal, err)
		}
	}
	if signals.Defense != "" {
		if err := e.resources.MintEncrypted(ctx, p.Bunker, signals.Defense); err != nil {
			return fmt.Errorf("%w: defense mint: %v", ErrInternal, err)
		}
	}

	tp := t.player(player)
	tp.LastActedRound = r.Number

	t.emit(events.TypeActionAccepted, r.Number, map[string]any{
		"player": player,
	})
	if err := t.commit(ctx); err != nil {
		return err
	}
	e.log.Debug("action accepted",
		zap.String("player", player), zap.Uint64("round", r.Number))
	return nil
}
