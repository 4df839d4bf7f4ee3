package simbot

import (
	"context"
	"encoding/base64"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/proofs"
	"github.com/bunkerwars/engine/pkg/protocol"
	"github.com/bunkerwars/engine/pkg/rpc"
)

type move int

const (
	moveIdle move = iota
	moveAct
	moveTopUp
	moveRelocate
	moveExit
)

// bot is one simulated player: its own token, its own deterministic policy
// stream. Each tick it observes its record and plays at most one move.
// Some moves are deliberately illegal; the engine saying no is part of
// what the run measures.
type bot struct {
	name   string
	token  string
	rng    *rand.Rand
	client *rpc.Client
	prover *proofs.Static
	cfg    *Config
	logger *zap.Logger
	stats  *Stats
}

func (b *bot) tick(ctx context.Context) {
	start := time.Now()
	me, err := b.client.Me(ctx, b.token)
	b.stats.Observe("me", time.Since(start), err)
	if err != nil {
		return
	}

	if me.Player == nil {
		b.join(ctx, me.Wallet)
		return
	}

	switch b.chooseMove() {
	case moveAct:
		b.act(ctx, me.Player)
	case moveTopUp:
		b.topUp(ctx, me.Wallet)
	case moveRelocate:
		b.relocate(ctx, me.Player.Bunker)
	case moveExit:
		b.exit(ctx)
	case moveIdle:
	}
}

// chooseMove rolls the policy die. Acting dominates; exits are rare so the
// roster stays populated.
func (b *bot) chooseMove() move {
	roll := b.rng.Intn(100)
	switch {
	case roll < 55:
		return moveAct
	case roll < 70:
		return moveTopUp
	case roll < 85:
		return moveRelocate
	case roll < 90:
		return moveExit
	default:
		return moveIdle
	}
}

func (b *bot) join(ctx context.Context, wallet uint64) {
	if wallet == 0 {
		return
	}
	stake := wallet/4 + b.stakeUpTo(1000)
	if stake > wallet {
		stake = wallet
	}
	bunker := b.randomBunker()

	start := time.Now()
	view, err := b.client.Join(ctx, b.token, bunker, stake)
	b.stats.Observe("join", time.Since(start), err)
	if err != nil {
		b.logger.Debug("join refused", zap.String("bot", b.name), zap.Error(err))
		return
	}
	b.logger.Debug("joined",
		zap.String("bot", b.name),
		zap.Uint8("bunker", view.Bunker),
		zap.Uint64("stake", stake))
}

func (b *bot) act(ctx context.Context, p *ledger.PlayerView) {
	start := time.Now()
	round, err := b.client.CurrentRound(ctx, b.token)
	b.stats.Observe("round.current", time.Since(start), err)
	if err != nil || round.State != "open" {
		return
	}
	if p.Claim == 0 {
		return
	}

	req := b.buildAct(p.Claim, round.Number)
	start = time.Now()
	err = b.client.Act(ctx, b.token, req)
	b.stats.Observe("act", time.Since(start), err)
	if err != nil {
		b.logger.Debug("action refused", zap.String("bot", b.name), zap.Error(err))
	}
}

// buildAct seals one action. The proof always commits to the true signals;
// at the malformed rate the request body then lies about the stake, which
// the engine must catch as a binding failure.
func (b *bot) buildAct(claim, round uint64) protocol.ActRequest {
	stake := b.stakeUpTo(claim)
	target := b.randomBunker()
	attack := b.payload()
	defense := b.payload()

	signals := proofs.Signals{
		Tag:     b.cfg.ActionTag,
		Player:  b.name,
		Round:   round,
		Stake:   stake,
		Target:  target,
		Attack:  attack,
		Defense: defense,
	}
	req := protocol.ActRequest{
		Round:   round,
		Target:  target,
		Stake:   stake,
		Attack:  attack,
		Defense: defense,
		Proof:   base64.StdEncoding.EncodeToString(b.prover.Prove(signals)),
	}
	if b.rng.Intn(100) < b.cfg.MalformedRate {
		req.Stake = stake + 1
	}
	return req
}

func (b *bot) topUp(ctx context.Context, wallet uint64) {
	amount := b.stakeUpTo(wallet / 2)
	if amount == 0 {
		return
	}
	start := time.Now()
	_, err := b.client.TopUp(ctx, b.token, amount)
	b.stats.Observe("topup", time.Since(start), err)
}

// relocate usually picks a legal neighbor; one move in ten aims anywhere
// to keep the adjacency check honest.
func (b *bot) relocate(ctx context.Context, from uint8) {
	var target uint8
	if neighbors := ledger.Neighbors(from); len(neighbors) > 0 && b.rng.Intn(10) > 0 {
		target = neighbors[b.rng.Intn(len(neighbors))]
	} else {
		target = b.randomBunker()
	}

	start := time.Now()
	_, err := b.client.Relocate(ctx, b.token, target)
	b.stats.Observe("relocate", time.Since(start), err)
}

func (b *bot) exit(ctx context.Context) {
	start := time.Now()
	res, err := b.client.Exit(ctx, b.token)
	b.stats.Observe("exit", time.Since(start), err)
	if err == nil {
		b.logger.Debug("exited",
			zap.String("bot", b.name),
			zap.Uint64("paid", res.Paid),
			zap.Uint64("wallet", res.Wallet))
	}
}

// stakeUpTo draws a uniform amount in [1, max], or 0 when max is 0.
func (b *bot) stakeUpTo(max uint64) uint64 {
	if max == 0 {
		return 0
	}
	return 1 + uint64(b.rng.Int63n(int64(max)))
}

func (b *bot) randomBunker() uint8 {
	return uint8(1 + b.rng.Intn(ledger.BunkerCount))
}

// payload stands in for an encrypted mint blob. Content is opaque to the
// engine; only the proof binding over it matters.
func (b *bot) payload() string {
	buf := make([]byte, 12)
	b.rng.Read(buf)
	return base64.StdEncoding.EncodeToString(buf)
}
