package ledger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/events"
)

// OpenRound starts the next combat window and returns its number. The first
// open moves the game from SETUP to ACTIVE. Preconditions: the prior round
// is resolved, no destroyed bunker still holds members, and the reserve has
// funds left. An empty reserve is terminal: the phase flips to ENDED, the
// change commits, and ErrReserveExhausted is returned so the caller learns
// why no round came back.
func (e *Engine) OpenRound(ctx context.Context) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.begin()

	switch e.st.Meta.Phase {
	case PhaseSetup, PhaseActive:
	default:
		return 0, fmt.Errorf("%w: %s", ErrWrongPhase, e.st.Meta.Phase)
	}
	if r := e.currentRound(); r != nil && !r.Resolved {
		return 0, fmt.Errorf("%w: round %d", ErrPriorUnresolved, r.Number)
	}
	for id := uint8(1); id <= BunkerCount; id++ {
		if b := e.st.Bunkers[id]; b.Destroyed() && len(b.Members) > 0 {
			return 0, fmt.Errorf("%w: bunker %d holds %d evictees", ErrCleanupPending, id, len(b.Members))
		}
	}

	avail, err := e.reserve.Available(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: reserve: %v", ErrInternal, err)
	}
	if avail == 0 {
		meta := t.mutableMeta()
		meta.Phase = PhaseEnded
		t.emit(events.TypeGameEnded, e.st.Meta.RoundSeq, map[string]any{
			"reason": "reserve exhausted",
		})
		if err := t.commit(ctx); err != nil {
			return 0, err
		}
		e.log.Info("reserve exhausted, game over",
			zap.Uint64("last_round", e.st.Meta.RoundSeq))
		return 0, ErrReserveExhausted
	}

	meta := t.mutableMeta()
	meta.RoundSeq++
	if meta.Phase == PhaseSetup {
		meta.Phase = PhaseActive
	}
	start := t.now.Unix()
	r := &Round{
		Number:   meta.RoundSeq,
		StartAt:  start,
		EndAt:    start + int64(e.rules.RoundDuration/time.Second),
		Emission: e.rules.EmissionPerRound,
	}
	t.putRound(r)

	t.emit(events.TypeRoundOpened, r.Number, map[string]any{
		"start_at": r.StartAt, "end_at": r.EndAt, "emission": r.Emission,
	})
	if err := t.commit(ctx); err != nil {
		return 0, err
	}
	e.log.Info("round opened",
		zap.Uint64("round", r.Number),
		zap.Int64("end_at", r.EndAt),
		zap.Uint64("emission", r.Emission))
	return r.Number, nil
}

// Halt freezes the game. Every operation except Exit is rejected until the
// process is rebooted with a fresh state; there is no resume.
func (e *Engine) Halt(ctx context.Context, reason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.begin()

	switch e.st.Meta.Phase {
	case PhaseHalted, PhaseEnded:
		return fmt.Errorf("%w: %s", ErrWrongPhase, e.st.Meta.Phase)
	}
	if reason == "" {
		reason = "halted by admin"
	}
	meta := t.mutableMeta()
	meta.Phase = PhaseHalted
	meta.HaltedAt = t.now.Unix()
	meta.HaltReason = reason

	t.emit(events.TypeGameHalted, e.st.Meta.RoundSeq, map[string]any{
		"reason": reason,
	})
	if err := t.commit(ctx); err != nil {
		return err
	}
	e.log.Warn("game halted", zap.String("reason", reason))
	return nil
}

// EmergencyHalt is the liveness valve anyone may pull when the oracle goes
// dark: once the current round has sat closed-unresolved past the grace
// period, the game halts so stake stops being hostage to the resolve gap.
func (e *Engine) EmergencyHalt(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.begin()

	if e.st.Meta.Phase != PhaseActive {
		return fmt.Errorf("%w: %s", ErrWrongPhase, e.st.Meta.Phase)
	}
	r := e.currentRound()
	if r == nil || r.Resolved || !r.Closed(t.now) {
		return ErrRoundNotClosed
	}
	deadline := r.EndAt + int64(e.rules.GracePeriod()/time.Second)
	if t.now.Unix() < deadline {
		return fmt.Errorf("%w: legal at %d, now %d", ErrGraceNotElapsed, deadline, t.now.Unix())
	}

	meta := t.mutableMeta()
	meta.Phase = PhaseHalted
	meta.HaltedAt = t.now.Unix()
	meta.HaltReason = fmt.Sprintf("emergency: round %d unresolved past grace", r.Number)

	t.emit(events.TypeGameHalted, r.Number, map[string]any{
		"reason": meta.HaltReason, "emergency": true,
	})
	if err := t.commit(ctx); err != nil {
		return err
	}
	e.log.Warn("emergency halt",
		zap.Uint64("round", r.Number), zap.Int64("closed_at", r.EndAt))
	return nil
}
