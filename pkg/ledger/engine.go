package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/custody"
	"github.com/bunkerwars/engine/pkg/proofs"
	"github.com/bunkerwars/engine/pkg/reserve"
	"github.com/bunkerwars/engine/pkg/resources"
)

// Engine is the single-writer ledger. Mutating operations serialize on the
// write lock, run inside a tx overlay, and follow checks-effects-
// interactions: validate against committed state, stage local effects,
// invoke collaborators, then commit (persist + swap + publish). Any error
// before commit leaves committed state untouched. Collaborators must not
// call back into the engine; the lock is not reentrant.
type Engine struct {
	mu sync.RWMutex
	st *State

	rules     Rules
	store     Store
	custodian custody.Custodian
	verifier  proofs.Verifier
	resources resources.Ledger
	reserve   reserve.Reserve

	log    *zap.Logger
	sink   EventSink
	audits AuditSink
	now    func() time.Time
}

// Deps wires the engine's collaborators. Custodian, Verifier, Resources,
// and Reserve are required; the rest default to no-ops.
type Deps struct {
	Store     Store
	Custodian custody.Custodian
	Verifier  proofs.Verifier
	Resources resources.Ledger
	Reserve   reserve.Reserve
	Logger    *zap.Logger
	Events    EventSink
	Audits    AuditSink
	Now       func() time.Time
}

// New builds an engine over st. The state is owned by the engine from here
// on; callers must not retain references into it.
func New(rules Rules, st *State, deps Deps) (*Engine, error) {
	if st == nil {
		st = NewState()
	}
	if deps.Custodian == nil || deps.Verifier == nil || deps.Resources == nil || deps.Reserve == nil {
		return nil, fmt.Errorf("custodian, verifier, resources and reserve are required")
	}
	if rules.RoundDuration <= 0 {
		return nil, fmt.Errorf("round duration must be positive")
	}
	if rules.GraceFactor < 1 {
		return nil, fmt.Errorf("grace factor must be at least 1")
	}
	if rules.MaxCleanupBatch < 1 {
		rules.MaxCleanupBatch = DefaultRules().MaxCleanupBatch
	}
	e := &Engine{
		st:        st,
		rules:     rules,
		store:     deps.Store,
		custodian: deps.Custodian,
		verifier:  deps.Verifier,
		resources: deps.Resources,
		reserve:   deps.Reserve,
		log:       deps.Logger,
		sink:      deps.Events,
		audits:    deps.Audits,
		now:       deps.Now,
	}
	if e.store == nil {
		e.store = NoopStore{}
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Rules returns the game parameters the engine was booted with.
func (e *Engine) Rules() Rules { return e.rules }

// currentRound is the latest round, nil before the first open.
// Callers hold the lock.
func (e *Engine) currentRound() *Round {
	if e.st.Meta.RoundSeq == 0 {
		return nil
	}
	return e.st.Rounds[e.st.Meta.RoundSeq]
}

// openRound returns the current round while its window is open.
func (e *Engine) openRound(now time.Time) (*Round, bool) {
	r := e.currentRound()
	if r == nil || r.Resolved || r.Closed(now) {
		return nil, false
	}
	return r, true
}

// inResolveGap reports whether the current round has closed without being
// resolved, the window where stake must not move.
func (e *Engine) inResolveGap(now time.Time) bool {
	r := e.currentRound()
	return r != nil && !r.Resolved && r.Closed(now)
}

// custodyOf reads the authoritative vault balance.
func (e *Engine) custodyOf(ctx context.Context, bunker uint8) (uint64, error) {
	bal, err := e.custodian.BalanceOf(ctx, bunker)
	if err != nil {
		return 0, fmt.Errorf("%w: custody balance of bunker %d: %v", ErrInternal, bunker, err)
	}
	return bal, nil
}

// claimOf computes a player's true current claim.
func (e *Engine) claimOf(ctx context.Context, p *Player) (uint64, error) {
	if !p.Positioned() {
		return 0, nil
	}
	b := e.st.Bunkers[p.Bunker]
	bal, err := e.custodyOf(ctx, p.Bunker)
	if err != nil {
		return 0, err
	}
	return trueClaim(p.Nominal, p.DepositIndex, b.ShareIndex, bal), nil
}

// stakeGate is the shared phase precondition for join and top-up: stake may
// enter during SETUP, or during ACTIVE outside the close-to-resolve gap.
func (e *Engine) stakeGate(now time.Time) error {
	switch e.st.Meta.Phase {
	case PhaseSetup:
		return nil
	case PhaseActive:
		if e.inResolveGap(now) {
			return ErrResolveGap
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrWrongPhase, e.st.Meta.Phase)
	}
}

// dropMember removes a player from a bunker's member list by swap-remove,
// fixing up the displaced member's ord. Touched records land in the overlay.
func dropMember(t *tx, tb *Bunker, tp *Player) {
	ord := tp.MemberOrd
	last := len(tb.Members) - 1
	moved := tb.Members[last]
	tb.Members[ord] = moved
	tb.Members = tb.Members[:last]
	if moved != tp.ID {
		tm := t.player(moved)
		tm.MemberOrd = ord
	}
}
