package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/events"
)

// ChangeSet is everything one committed operation touched, in deterministic
// order. The store applies it in a single transaction; records are full
// post-operation rows (upserts), never deltas.
type ChangeSet struct {
	Players []*Player
	Bunkers []*Bunker
	Rounds  []*Round
	Audit   *AuditEntry
	Meta    *GameMeta
}

// Empty reports whether the operation staged nothing.
func (cs *ChangeSet) Empty() bool {
	return len(cs.Players) == 0 && len(cs.Bunkers) == 0 && len(cs.Rounds) == 0 &&
		cs.Audit == nil && cs.Meta == nil
}

// Store persists committed change sets. Apply must be atomic: either every
// record in the set lands or none do.
type Store interface {
	Apply(ctx context.Context, cs *ChangeSet) error
}

// NoopStore keeps state in memory only. Tests and ephemeral dev runs.
type NoopStore struct{}

func (NoopStore) Apply(context.Context, *ChangeSet) error { return nil }

// EventSink receives events after their operation has committed.
type EventSink func(evt events.Event)

// AuditSink receives the immutable resolve record after commit; failures
// are logged, not propagated, since the store row is the durable copy.
type AuditSink interface {
	RecordAudit(ctx context.Context, entry *AuditEntry) error
}

// tx is the copy-on-write overlay one operation stages its effects on.
// Records are cloned from committed state on first touch; commit persists
// the dirty set and swaps it in, so a failed operation leaves no trace.
type tx struct {
	e   *Engine
	now time.Time

	players map[string]*Player
	bunkers map[uint8]*Bunker
	rounds  map[uint64]*Round
	meta    *GameMeta
	audit   *AuditEntry
	pending []events.Event
}

func (e *Engine) begin() *tx {
	return &tx{
		e:       e,
		now:     e.now(),
		players: make(map[string]*Player),
		bunkers: make(map[uint8]*Bunker),
		rounds:  make(map[uint64]*Round),
	}
}

// player returns a mutable copy of the record, cloning it into the overlay
// on first touch. Nil when the player does not exist.
func (t *tx) player(id string) *Player {
	if p, ok := t.players[id]; ok {
		return p
	}
	committed, ok := t.e.st.Players[id]
	if !ok {
		return nil
	}
	cp := committed.clone()
	t.players[id] = cp
	return cp
}

// upsertPlayer is player() that creates a fresh record when none exists.
func (t *tx) upsertPlayer(id string) *Player {
	if p := t.player(id); p != nil {
		return p
	}
	p := &Player{ID: id}
	t.players[id] = p
	return p
}

// peekPlayer reads without dirtying: staged copy if touched, committed
// record otherwise. Callers must not mutate the result.
func (t *tx) peekPlayer(id string) *Player {
	if p, ok := t.players[id]; ok {
		return p
	}
	return t.e.st.Players[id]
}

// bunker returns a mutable copy, members slice included.
func (t *tx) bunker(id uint8) *Bunker {
	if b, ok := t.bunkers[id]; ok {
		return b
	}
	cp := t.e.st.Bunkers[id].clone()
	t.bunkers[id] = cp
	return cp
}

// peekBunker reads without dirtying.
func (t *tx) peekBunker(id uint8) *Bunker {
	if b, ok := t.bunkers[id]; ok {
		return b
	}
	return t.e.st.Bunkers[id]
}

// round returns a mutable copy of an existing round.
func (t *tx) round(n uint64) *Round {
	if r, ok := t.rounds[n]; ok {
		return r
	}
	committed, ok := t.e.st.Rounds[n]
	if !ok {
		return nil
	}
	cp := committed.clone()
	t.rounds[n] = cp
	return cp
}

// putRound stages a brand-new round.
func (t *tx) putRound(r *Round) {
	t.rounds[r.Number] = r
}

// mutableMeta copies the scalar game state into the overlay once.
func (t *tx) mutableMeta() *GameMeta {
	if t.meta == nil {
		cp := t.e.st.Meta
		t.meta = &cp
	}
	return t.meta
}

// emit queues an event for publication after commit.
func (t *tx) emit(typ string, round uint64, data map[string]any) {
	evt := events.New(typ, round, data)
	evt.At = t.now.UTC()
	t.pending = append(t.pending, evt)
}

// changeSet flattens the overlay in deterministic order.
func (t *tx) changeSet() *ChangeSet {
	cs := &ChangeSet{Audit: t.audit, Meta: t.meta}
	for _, p := range t.players {
		cs.Players = append(cs.Players, p)
	}
	sort.Slice(cs.Players, func(i, j int) bool { return cs.Players[i].ID < cs.Players[j].ID })
	for _, b := range t.bunkers {
		cs.Bunkers = append(cs.Bunkers, b)
	}
	sort.Slice(cs.Bunkers, func(i, j int) bool { return cs.Bunkers[i].ID < cs.Bunkers[j].ID })
	for _, r := range t.rounds {
		cs.Rounds = append(cs.Rounds, r)
	}
	sort.Slice(cs.Rounds, func(i, j int) bool { return cs.Rounds[i].Number < cs.Rounds[j].Number })
	return cs
}

// commit persists the overlay and swaps it into committed state, then
// publishes the queued events. On a persist error nothing is swapped and
// the operation reports failure with state untouched.
func (t *tx) commit(ctx context.Context) error {
	cs := t.changeSet()
	if err := t.e.store.Apply(ctx, cs); err != nil {
		t.e.log.Error("change set rejected by store", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	st := t.e.st
	for id, p := range t.players {
		st.Players[id] = p
	}
	for id, b := range t.bunkers {
		st.Bunkers[id] = b
	}
	for n, r := range t.rounds {
		st.Rounds[n] = r
	}
	if t.meta != nil {
		st.Meta = *t.meta
	}
	if t.audit != nil {
		st.Audits[t.audit.Round] = t.audit
		if t.e.audits != nil {
			if err := t.e.audits.RecordAudit(ctx, t.audit); err != nil {
				t.e.log.Warn("audit journal write failed", zap.Uint64("round", t.audit.Round), zap.Error(err))
			}
		}
	}
	if t.e.sink != nil {
		for _, evt := range t.pending {
			t.e.sink(evt)
		}
	}
	return nil
}
