package ledger

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/events"
)

// Join stakes a new position. The player must be unpositioned, the bunker
// alive, the amount at least the join minimum, and stake may only enter
// during SETUP or an ACTIVE phase outside the close-to-resolve gap. The
// deposit index snapshots the bunker's current share index, so the claim
// starts exactly equal to the stake.
func (e *Engine) Join(ctx context.Context, player string, bunker uint8, amount uint64) error {
	if player == "" {
		return fmt.Errorf("%w: empty player id", ErrValidation)
	}
	if !ValidBunker(bunker) {
		return fmt.Errorf("%w: %d", ErrInvalidBunker, bunker)
	}
	if amount > MaxAmount {
		return ErrAmountRange
	}
	if amount < e.rules.MinJoin {
		return fmt.Errorf("%w: got %d, need %d", ErrBelowMinimum, amount, e.rules.MinJoin)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.begin()

	if err := e.stakeGate(t.now); err != nil {
		return err
	}
	if p := e.st.Players[player]; p.Positioned() {
		return fmt.Errorf("%w: %s is in bunker %d", ErrAlreadyPositioned, player, p.Bunker)
	}
	if e.st.Bunkers[bunker].Destroyed() {
		return fmt.Errorf("%w: bunker %d", ErrBunkerDestroyed, bunker)
	}

	tb := t.bunker(bunker)
	if tb.Nominal+amount > MaxAmount {
		return ErrAmountRange
	}
	tp := t.upsertPlayer(player)
	tp.Bunker = bunker
	tp.Nominal = amount
	tp.DepositIndex = tb.ShareIndex
	tp.CheckpointAt = t.now.Unix()
	tp.MemberOrd = len(tb.Members)
	tb.Members = append(tb.Members, player)
	tb.Nominal += amount
	tb.LastRound = e.st.Meta.RoundSeq

	if err := e.custodian.Deposit(ctx, player, bunker, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrCustodyRefused, err)
	}

	t.emit(events.TypePlayerJoined, e.st.Meta.RoundSeq, map[string]any{
		"player": player, "bunker": bunker, "amount": amount,
	})
	if err := t.commit(ctx); err != nil {
		return err
	}
	e.log.Debug("player joined",
		zap.String("player", player), zap.Uint8("bunker", bunker), zap.Uint64("amount", amount))
	return nil
}

// TopUp adds stake to an existing position. The accrued gain or loss is
// folded first: nominal becomes the true claim plus the new amount and the
// deposit index resets to current, so later proportional math starts from
// a clean checkpoint.
func (e *Engine) TopUp(ctx context.Context, player string, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if amount > MaxAmount {
		return ErrAmountRange
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.begin()

	if err := e.stakeGate(t.now); err != nil {
		return err
	}
	p := e.st.Players[player]
	if p == nil {
		return fmt.Errorf("%w: %s", ErrNoPlayer, player)
	}
	if !p.Positioned() {
		return fmt.Errorf("%w: %s", ErrNotPositioned, player)
	}
	if seq := e.st.Meta.RoundSeq; seq > 0 && p.LastActedRound == seq {
		return fmt.Errorf("%w: round %d", ErrAlreadyActed, seq)
	}
	if e.st.Bunkers[p.Bunker].Destroyed() {
		return fmt.Errorf("%w: bunker %d", ErrBunkerDestroyed, p.Bunker)
	}

	claim, err := e.claimOf(ctx, p)
	if err != nil {
		return err
	}

	tb := t.bunker(p.Bunker)
	if claim+amount > MaxAmount || tb.Nominal+amount > MaxAmount {
		return ErrAmountRange
	}
	tp := t.player(player)
	tp.Nominal = claim + amount
	tp.DepositIndex = tb.ShareIndex
	tp.CheckpointAt = t.now.Unix()
	tb.Nominal += amount
	tb.LastRound = e.st.Meta.RoundSeq

	if err := e.custodian.Deposit(ctx, player, p.Bunker, amount); err != nil {
		return fmt.Errorf("%w: %v", ErrCustodyRefused, err)
	}

	t.emit(events.TypePlayerToppedUp, e.st.Meta.RoundSeq, map[string]any{
		"player": player, "bunker": p.Bunker, "amount": amount,
	})
	return t.commit(ctx)
}

// Relocate moves a player's whole claim to an adjacent bunker. It consumes
// the player's one privileged action for the round, so it requires an open
// round. Residual rounding dust stays behind in the old vault; only exit
// absorbs dust, and only for the last member.
func (e *Engine) Relocate(ctx context.Context, player string, target uint8) error {
	if !ValidBunker(target) {
		return fmt.Errorf("%w: %d", ErrInvalidBunker, target)
	}

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
	if !Adjacent(p.Bunker, target) {
		return fmt.Errorf("%w: %d -> %d", ErrNotAdjacent, p.Bunker, target)
	}
	if e.st.Bunkers[target].Destroyed() {
		return fmt.Errorf("%w: bunker %d", ErrBunkerDestroyed, target)
	}

	claim, err := e.claimOf(ctx, p)
	if err != nil {
		return err
	}

	from := p.Bunker
	told := t.bunker(from)
	tnew := t.bunker(target)
	if tnew.Nominal+claim > MaxAmount {
		return ErrAmountRange
	}
	tp := t.player(player)
	dropMember(t, told, tp)
	if claim > told.Nominal {
		told.Nominal = 0
	} else {
		told.Nominal -= claim
	}
	tp.Bunker = target
	tp.Nominal = claim
	tp.DepositIndex = tnew.ShareIndex
	tp.CheckpointAt = t.now.Unix()
	tp.MemberOrd = len(tnew.Members)
	tp.LastActedRound = r.Number
	tnew.Members = append(tnew.Members, player)
	tnew.Nominal += claim
	told.LastRound = r.Number
	tnew.LastRound = r.Number

	if claim > 0 {
		if err := e.custodian.Transfer(ctx, from, target, claim); err != nil {
			return fmt.Errorf("%w: %v", ErrCustodyRefused, err)
		}
	}

	t.emit(events.TypePlayerRelocated, r.Number, map[string]any{
		"player": player, "from": from, "to": target, "moved": claim,
	})
	return t.commit(ctx)
}

// Exit withdraws the player's true claim and clears the record. Legal at
// any time, halted and ended phases included, except while an active round
// sits closed-but-unresolved. The last member of a bunker takes the entire
// custodied balance, dust included; everyone else takes the claim formula.
// The last-acted stamp is retained so exit-and-rejoin cannot double-act.
func (e *Engine) Exit(ctx context.Context, player string) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := e.begin()

	p := e.st.Players[player]
	if p == nil {
		return 0, fmt.Errorf("%w: %s", ErrNoPlayer, player)
	}
	if !p.Positioned() {
		return 0, fmt.Errorf("%w: %s", ErrNotPositioned, player)
	}
	if e.st.Meta.Phase == PhaseActive && e.inResolveGap(t.now) {
		return 0, ErrResolveGap
	}

	from := p.Bunker
	b := e.st.Bunkers[from]
	bal, err := e.custodyOf(ctx, from)
	if err != nil {
		return 0, err
	}
	var paid uint64
	lastMember := len(b.Members) == 1
	if lastMember {
		paid = bal
	} else {
		paid = trueClaim(p.Nominal, p.DepositIndex, b.ShareIndex, bal)
	}

	tb := t.bunker(from)
	tp := t.player(player)
	dropMember(t, tb, tp)
	if lastMember {
		tb.Nominal = 0
	} else if paid > tb.Nominal {
		tb.Nominal = 0
	} else {
		tb.Nominal -= paid
	}
	tb.LastRound = e.st.Meta.RoundSeq
	tp.Bunker = 0
	tp.Nominal = 0
	tp.DepositIndex = 0
	tp.CheckpointAt = 0
	tp.MemberOrd = 0

	if paid > 0 {
		if err := e.custodian.Withdraw(ctx, from, player, paid); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrCustodyRefused, err)
		}
	}

	t.emit(events.TypePlayerExited, e.st.Meta.RoundSeq, map[string]any{
		"player": player, "bunker": from, "paid": paid,
	})
	if err := t.commit(ctx); err != nil {
		return 0, err
	}
	e.log.Debug("player exited",
		zap.String("player", player), zap.Uint8("bunker", from), zap.Uint64("paid", paid))
	return paid, nil
}
