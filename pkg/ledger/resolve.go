package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/custody"
	"github.com/bunkerwars/engine/pkg/events"
)

// custodyOp is one vault movement computed during resolve staging and
// executed after all ledger effects are staged.
type custodyOp struct {
	deposit bool
	bunker  uint8
	amount  uint64
}

// Resolve applies the oracle's revealed combat totals to the closed round,
// then distributes the round's frozen emission. Attack and defense arrays
// are indexed by bunker minus one and recorded verbatim in the audit entry.
//
// Per bunker, damage is attack minus defense, floored at zero, and is
// compared against the custodied balance, not the drift-prone nominal sum.
// Damage at or above custody destroys the bunker: the vault is forfeited,
// the index zeroed, members left for Cleanup to evict. Damage strictly
// precedes emission, so a bunker destroyed this round never sees this
// round's reward.
//
// Distribution withdraws min(frozen, available) from the reserve and splits
// it six ways, the hub taking two shares. Shares for destroyed, empty, or
// zero-stake bunkers spoil; integer leftovers are dust. Both are discarded,
// never re-queued. Finally every bunker's hidden resources are burned so
// the next round starts from a clean slate.
func (e *Engine) Resolve(ctx context.Context, round uint64, attacks, defenses [BunkerCount]uint64) error {
	for i := 0; i < BunkerCount; i++ {
		if attacks[i] > MaxAmount || defenses[i] > MaxAmount {
			return ErrAmountRange
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.begin()

	if e.st.Meta.Phase != PhaseActive {
		return fmt.Errorf("%w: %s", ErrWrongPhase, e.st.Meta.Phase)
	}
	r := e.currentRound()
	if r == nil {
		return fmt.Errorf("%w: %d", ErrNoRound, round)
	}
	if round != r.Number {
		return fmt.Errorf("%w: got %d, current is %d", ErrWrongRound, round, r.Number)
	}
	if r.Resolved {
		return fmt.Errorf("%w: round %d", ErrAlreadyResolved, round)
	}
	if !r.Closed(t.now) {
		return fmt.Errorf("%w: round %d open until %d", ErrRoundNotClosed, round, r.EndAt)
	}

	audit := &AuditEntry{
		Round:     round,
		Attacks:   attacks,
		Defenses:  defenses,
		CreatedAt: t.now.Unix(),
	}
	var ops []custodyOp

	// Combat first. Balances are read before any vault movement so the
	// destruction threshold sees the pre-round truth.
	for id := uint8(1); id <= BunkerCount; id++ {
		i := id - 1
		var damage uint64
		if attacks[i] > defenses[i] {
			damage = attacks[i] - defenses[i]
		}
		audit.Damages[i] = damage

		b := e.st.Bunkers[id]
		if b.Destroyed() {
			continue
		}
		actual, err := e.custodyOf(ctx, id)
		if err != nil {
			return err
		}
		audit.Balances[i] = actual
		if damage == 0 {
			audit.IndexAfter[i] = b.ShareIndex
			continue
		}

		tb := t.bunker(id)
		tb.LastRound = round
		if damage >= actual {
			tb.ShareIndex = 0
			tb.Nominal = 0
			tb.CleanupEvicted = 0
			audit.Destroyed = append(audit.Destroyed, id)
			if actual > 0 {
				ops = append(ops, custodyOp{bunker: id, amount: actual})
			}
			t.emit(events.TypeBunkerDestroyed, round, map[string]any{
				"bunker": id, "forfeited": actual, "damage": damage,
			})
			continue
		}
		tb.ShareIndex = damagedIndex(tb.ShareIndex, actual, damage)
		tb.Nominal = actual - damage
		audit.IndexAfter[i] = tb.ShareIndex
		ops = append(ops, custodyOp{bunker: id, amount: damage})
		t.emit(events.TypeBunkerDamaged, round, map[string]any{
			"bunker": id, "damage": damage, "index": tb.ShareIndex,
		})
	}

	// Emission. The reserve never rejects: it pays what it has, and a
	// short round is still a resolved round.
	withdrawn, err := e.reserve.Withdraw(ctx, r.Emission)
	if err != nil {
		return fmt.Errorf("%w: reserve withdraw: %v", ErrInternal, err)
	}
	base := withdrawn / 6
	var spoiled uint64
	for id := uint8(1); id <= BunkerCount; id++ {
		share := base
		if id == HubBunker {
			share = 2 * base
		}
		if share == 0 {
			continue
		}
		b := t.peekBunker(id)
		if b.Destroyed() || len(b.Members) == 0 || b.Nominal == 0 {
			spoiled += share
			continue
		}
		next, ok := grownIndex(b.ShareIndex, b.Nominal, share)
		if !ok || b.Nominal+share > MaxAmount {
			return fmt.Errorf("%w: bunker %d emission %d", ErrIndexOverflow, id, share)
		}
		tb := t.bunker(id)
		tb.ShareIndex = next
		tb.Nominal += share
		tb.LastRound = round
		audit.Shares[id-1] = share
		audit.IndexAfter[id-1] = next
		ops = append(ops, custodyOp{deposit: true, bunker: id, amount: share})
	}
	dust := withdrawn - 6*base

	tr := t.round(round)
	tr.Resolved = true
	tr.ResolvedAt = t.now.Unix()
	tr.Withdrawn = withdrawn
	tr.Spoiled = spoiled
	tr.Dust = dust

	audit.Requested = r.Emission
	audit.Withdrawn = withdrawn
	audit.Spoiled = spoiled
	audit.Dust = dust
	t.audit = audit

	t.emit(events.TypeEmission, round, map[string]any{
		"requested": r.Emission, "withdrawn": withdrawn,
		"base": base, "spoiled": spoiled, "dust": dust,
	})
	t.emit(events.TypeRoundResolved, round, map[string]any{
		"destroyed": audit.Destroyed,
	})

	// Ledger effects are final; now move the vaults. Forfeits and damage
	// burn to the sink, shares come in from the reserve account.
	for _, op := range ops {
		if op.deposit {
			err = e.custodian.Deposit(ctx, custody.ReserveAccount, op.bunker, op.amount)
		} else {
			err = e.custodian.Withdraw(ctx, op.bunker, custody.SinkAccount, op.amount)
		}
		if err != nil {
			return fmt.Errorf("%w: custody move for bunker %d: %v", ErrInternal, op.bunker, err)
		}
	}
	all := []uint8{1, 2, 3, 4, 5}
	if err := e.resources.BurnAll(ctx, all); err != nil {
		return fmt.Errorf("%w: resource burn: %v", ErrInternal, err)
	}

	if err := t.commit(ctx); err != nil {
		return err
	}
	e.log.Info("round resolved",
		zap.Uint64("round", round),
		zap.Uint64("withdrawn", withdrawn),
		zap.Uint64("spoiled", spoiled),
		zap.Uint8s("destroyed", audit.Destroyed))
	return nil
}
