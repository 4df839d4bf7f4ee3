package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/events"
)

// Cleanup evicts up to maxBatch members from a destroyed bunker, newest
// first. Evicted records are cleared outright: custody was forfeited at
// destruction, so there is nothing to pay out, and only the last-acted
// stamp survives. The call is resumable; the persisted eviction cursor
// means a crash mid-cleanup picks up where it left off. Once the member
// list drains, the bunker is reinitialized at IndexBase and is immediately
// joinable again. A non-positive or oversized maxBatch falls back to the
// configured limit.
func (e *Engine) Cleanup(ctx context.Context, bunker uint8, maxBatch int) (CleanupResult, error) {
	var res CleanupResult
	if !ValidBunker(bunker) {
		return res, fmt.Errorf("%w: %d", ErrInvalidBunker, bunker)
	}
	if maxBatch <= 0 || maxBatch > e.rules.MaxCleanupBatch {
		maxBatch = e.rules.MaxCleanupBatch
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.begin()

	if e.st.Meta.Phase != PhaseActive {
		return res, fmt.Errorf("%w: %s", ErrWrongPhase, e.st.Meta.Phase)
	}
	b := e.st.Bunkers[bunker]
	if !b.Destroyed() {
		return res, fmt.Errorf("%w: bunker %d", ErrBunkerAlive, bunker)
	}

	tb := t.bunker(bunker)
	n := maxBatch
	if n > len(tb.Members) {
		n = len(tb.Members)
	}
	for i := 0; i < n; i++ {
		id := tb.Members[len(tb.Members)-1]
		tb.Members = tb.Members[:len(tb.Members)-1]
		tp := t.player(id)
		tp.Bunker = 0
		tp.Nominal = 0
		tp.DepositIndex = 0
		tp.CheckpointAt = 0
		tp.MemberOrd = 0
	}
	tb.CleanupEvicted += uint64(n)
	tb.LastRound = e.st.Meta.RoundSeq

	res = CleanupResult{Bunker: bunker, Evicted: n, Remaining: len(tb.Members)}
	seq := e.st.Meta.RoundSeq
	if len(tb.Members) == 0 {
		tb.ShareIndex = IndexBase
		tb.Nominal = 0
		tb.CleanupEvicted = 0
		res.Reinitialized = true
	}

	if n > 0 {
		t.emit(events.TypeCleanupProgress, seq, map[string]any{
			"bunker": bunker, "evicted": n, "remaining": res.Remaining,
		})
	}
	if res.Reinitialized {
		t.emit(events.TypeBunkerReinitialized, seq, map[string]any{
			"bunker": bunker,
		})
	}
	if err := t.commit(ctx); err != nil {
		return CleanupResult{}, err
	}
	e.log.Info("cleanup batch",
		zap.Uint8("bunker", bunker),
		zap.Int("evicted", n),
		zap.Int("remaining", res.Remaining),
		zap.Bool("reinitialized", res.Reinitialized))
	return res, nil
}
