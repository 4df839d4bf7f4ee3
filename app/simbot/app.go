// Package simbot floods a running engine with simulated players. It mints a
// roster of token-holding bots, funds them from the faucet, and lets each
// play its own seeded strategy: join, stake, seal actions, relocate, exit.
// In drive mode it also plays admin and oracle, opening rounds, revealing
// random combat totals, and cleaning up destroyed bunkers, so a single
// process exercises the full game loop end to end.
package simbot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/logging"
	"github.com/bunkerwars/engine/pkg/proofs"
	"github.com/bunkerwars/engine/pkg/protocol"
	"github.com/bunkerwars/engine/pkg/retry"
	"github.com/bunkerwars/engine/pkg/rpc"
)

type App struct {
	Config Config
	Logger *zap.Logger
	Client *rpc.Client
	Pool   pond.Pool
	Stats  *Stats
	Prover *proofs.Static

	bots        []*bot
	adminToken  string
	oracleToken string
	rng         *rand.Rand
	resolved    int
}

// Initialize connects to the engine, logs the operators in, and mints and
// funds the whole roster. Any boot failure is fatal; a simulator with half
// a roster measures nothing.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg := LoadConfig()
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	logger.Info("Starting simbot",
		zap.Strings("targets", cfg.Targets),
		zap.Int("players", cfg.Players),
		zap.Int64("seed", cfg.Seed),
		zap.Bool("drive", cfg.Drive))

	client := rpc.New(rpc.Opts{Endpoints: cfg.Targets})

	healthErr := retry.WithBackoff(ctx, retry.Config{
		MaxRetries:    8,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}, logger, "engine health", func() error {
		_, herr := client.Health(ctx)
		return herr
	})
	if healthErr != nil {
		logger.Fatal("Engine unreachable", zap.Error(healthErr))
	}

	admin, err := client.Login(ctx, cfg.AdminUser, cfg.AdminPass)
	if err != nil {
		logger.Fatal("Admin login failed", zap.Error(err))
	}

	app := &App{
		Config:     cfg,
		Logger:     logger,
		Client:     client,
		Stats:      NewStats(),
		Prover:     proofs.NewStatic(cfg.ProofSecret),
		adminToken: admin.Token,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
	}

	if cfg.Drive {
		oracle, oerr := client.Login(ctx, cfg.OracleUser, cfg.OraclePass)
		if oerr != nil {
			logger.Fatal("Oracle login failed", zap.Error(oerr))
		}
		app.oracleToken = oracle.Token
	}

	for i := 0; i < cfg.Players; i++ {
		name := fmt.Sprintf("bot-%03d", i)
		tok, terr := client.MintToken(ctx, admin.Token, name, "player")
		if terr != nil {
			logger.Fatal("Unable to mint player token", zap.String("bot", name), zap.Error(terr))
		}
		if _, ferr := client.Faucet(ctx, admin.Token, name, cfg.Fund); ferr != nil {
			logger.Fatal("Unable to fund player", zap.String("bot", name), zap.Error(ferr))
		}
		app.bots = append(app.bots, &bot{
			name:   name,
			token:  tok.Token,
			rng:    rand.New(rand.NewSource(cfg.Seed + int64(i) + 1)),
			client: client,
			prover: app.Prover,
			cfg:    &app.Config,
			logger: logger,
			stats:  app.Stats,
		})
	}
	logger.Info("Roster funded", zap.Int("players", len(app.bots)), zap.Uint64("fund", cfg.Fund))

	workers := cfg.Workers
	if workers <= 0 {
		workers = cfg.Players
	}
	app.Pool = pond.NewPool(workers, pond.WithQueueSize(workers*4))

	return app
}

// Start runs decision passes until the context is cancelled, the round
// budget is spent, or the game itself ends.
func (a *App) Start(ctx context.Context) {
	ticker := time.NewTicker(a.Config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.Stop()
			return
		case <-ticker.C:
		}

		group := a.Pool.NewGroupContext(ctx)
		groupCtx := group.Context()
		for _, b := range a.bots {
			b := b
			group.Submit(func() {
				if groupCtx.Err() != nil {
					return
				}
				b.tick(groupCtx)
			})
		}
		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
			a.Logger.Warn("Decision pass failed", zap.Error(err))
		}

		if a.Config.Drive && a.drive(ctx) {
			a.Stop()
			return
		}
	}
}

// drive plays the operator side of one tick: clean up wreckage, open the
// round when none is running, resolve it once the window closes. Returns
// true when the run is over.
func (a *App) drive(ctx context.Context) bool {
	start := time.Now()
	st, err := a.Client.Status(ctx, a.adminToken)
	a.Stats.Observe("status", time.Since(start), err)
	if err != nil {
		return false
	}

	for _, bunker := range st.Status.CleanupDue {
		start = time.Now()
		res, cerr := a.Client.Cleanup(ctx, a.oracleToken, bunker, 0)
		a.Stats.Observe("cleanup", time.Since(start), cerr)
		if cerr == nil {
			a.Logger.Info("Cleaned up destroyed bunker",
				zap.Uint8("bunker", bunker),
				zap.Int("evicted", res.Evicted),
				zap.Int("remaining", res.Remaining))
		}
	}

	switch st.Status.Phase {
	case "halted", "ended":
		a.Logger.Info("Game over", zap.String("phase", st.Status.Phase))
		return true
	case "setup":
		a.openRound(ctx)
		return false
	}

	round := st.Status.Round
	if round == nil || round.State == "resolved" {
		a.openRound(ctx)
		return false
	}
	if round.State != "closed" {
		return false
	}

	attacks, defenses := resolveTotals(a.rng, st.Bunkers)
	start = time.Now()
	audit, rerr := a.Client.Resolve(ctx, a.oracleToken, protocol.ResolveRequest{
		Round:    round.Number,
		Attacks:  attacks,
		Defenses: defenses,
	})
	a.Stats.Observe("resolve", time.Since(start), rerr)
	if rerr != nil {
		a.Logger.Warn("Resolve refused", zap.Uint64("round", round.Number), zap.Error(rerr))
		return false
	}

	a.resolved++
	a.Logger.Info("Round resolved",
		zap.Uint64("round", audit.Round),
		zap.Uint64("withdrawn", audit.Withdrawn),
		zap.Uint64("spoiled", audit.Spoiled),
		zap.Uint8s("destroyed", audit.Destroyed))
	if a.Config.Rounds > 0 && a.resolved >= a.Config.Rounds {
		a.Logger.Info("Round budget spent", zap.Int("rounds", a.resolved))
		return true
	}
	return false
}

func (a *App) openRound(ctx context.Context) {
	start := time.Now()
	round, err := a.Client.OpenRound(ctx, a.adminToken)
	a.Stats.Observe("round.open", time.Since(start), err)
	if err != nil {
		a.Logger.Warn("Unable to open round", zap.Error(err))
		return
	}
	a.Logger.Info("Round opened",
		zap.Uint64("round", round.Number),
		zap.Uint64("emission", round.Emission))
}

// resolveTotals invents oracle reveals scaled to each bunker's vault, hot
// enough that destruction happens but is not the norm. Attack tops out at
// 1.5x custody, defense at 0.5x, so net damage stays below custody more
// often than not.
func resolveTotals(rng *rand.Rand, bunkers []ledger.BunkerView) (attacks, defenses [ledger.BunkerCount]uint64) {
	for _, b := range bunkers {
		if !ledger.ValidBunker(b.ID) || b.Destroyed || b.Custody == 0 {
			continue
		}
		i := b.ID - 1
		limit := int64(b.Custody/2) + 1
		attacks[i] = uint64(rng.Int63n(limit)) * 3
		defenses[i] = uint64(rng.Int63n(limit))
		if attacks[i] > ledger.MaxAmount {
			attacks[i] = ledger.MaxAmount
		}
	}
	return attacks, defenses
}

// Stop drains the worker pool and prints the scoreboard.
func (a *App) Stop() {
	a.Pool.StopAndWait()
	a.Stats.Report(a.Logger)
	a.Logger.Info("さようなら!")
}
