package engine

import (
	"context"
	"encoding/json"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/bunkerwars/engine/app/engine/types"
	"github.com/bunkerwars/engine/pkg/config"
	"github.com/bunkerwars/engine/pkg/custody"
	"github.com/bunkerwars/engine/pkg/db"
	"github.com/bunkerwars/engine/pkg/events"
	"github.com/bunkerwars/engine/pkg/journal"
	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/logging"
	"github.com/bunkerwars/engine/pkg/proofs"
	"github.com/bunkerwars/engine/pkg/redis"
	"github.com/bunkerwars/engine/pkg/reserve"
	"github.com/bunkerwars/engine/pkg/resources"
	"github.com/bunkerwars/engine/pkg/retry"
	"github.com/bunkerwars/engine/pkg/utils"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New()
	if err != nil {
		// nothing else to do here, we'll just log to stderr
		panic(err)
	}

	cfg, err := config.Load("")
	if err != nil {
		logger.Fatal("Unable to load configuration", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	store, err := db.Open(filepath.Join(cfg.Engine.DataDir, "engine.db"), logger)
	if err != nil {
		logger.Fatal("Unable to open ledger database", zap.Error(err))
	}
	state, err := store.Load(ctx)
	if err != nil {
		logger.Fatal("Unable to load ledger state", zap.Error(err))
	}

	auditJournal := journal.NewAuditJournal(filepath.Join(cfg.Engine.DataDir, "journal"), logger)

	// Redis is optional; without it the websocket surface degrades to 503.
	var redisClient *redis.Client
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		connectErr := retry.WithBackoff(ctx, retry.Config{
			MaxRetries:    5,
			InitialDelay:  time.Second,
			MaxDelay:      10 * time.Second,
			Multiplier:    2.0,
			JitterEnabled: true,
		}, logger, "redis connect", func() error {
			var cerr error
			redisClient, cerr = redis.NewClient(ctx, logger)
			return cerr
		})
		if connectErr != nil {
			logger.Warn("Redis unavailable - WebSocket real-time events will be disabled",
				zap.Error(connectErr))
			redisClient = nil
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	bus := events.NewBus(events.DefaultBusCapacity, eventMirror(redisClient, logger), logger)

	custodian := custody.NewMemory()
	verifier := newVerifier(cfg, logger)
	pool := reserve.NewMemory(cfg.Reserve.Initial)

	eng, err := ledger.New(cfg.Rules(), state, ledger.Deps{
		Store:     store,
		Custodian: custodian,
		Verifier:  verifier,
		Resources: resources.NewMemory(),
		Reserve:   pool,
		Logger:    logger,
		Events:    bus.Publish,
		Audits:    auditJournal,
		Now:       time.Now,
	})
	if err != nil {
		logger.Fatal("Unable to build engine", zap.Error(err))
	}

	app := &types.App{
		Config:      cfg,
		Engine:      eng,
		Store:       store,
		Journal:     auditJournal,
		Bus:         bus,
		Custodian:   custodian,
		Faucet:      custodian,
		Reserve:     pool,
		RedisClient: redisClient,
		Logger:      logger,
	}

	cron, err := NewScheduler(app)
	if err != nil {
		logger.Fatal("Unable to build scheduler", zap.Error(err))
	}
	app.Cron = cron

	return app
}

// newVerifier selects the proof verifier: an HTTP sidecar when endpoints are
// configured, the shared-secret dev verifier otherwise.
func newVerifier(cfg *config.Config, logger *zap.Logger) proofs.Verifier {
	if len(cfg.Proofs.Endpoints) > 0 {
		logger.Info("Using sidecar proof verifier",
			zap.Strings("endpoints", cfg.Proofs.Endpoints))
		return proofs.NewHTTP(proofs.Opts{Endpoints: cfg.Proofs.Endpoints})
	}
	secret := cfg.Proofs.Secret
	if secret == "" {
		secret = "dev-insecure-secret"
		logger.Warn("No proof secret configured, using the dev default")
	}
	return proofs.NewStatic(secret)
}

// eventMirror forwards committed events to redis pub/sub and the backlog
// stream. Returns nil when redis is absent so the bus skips the goroutine.
func eventMirror(client *redis.Client, logger *zap.Logger) events.Mirror {
	if client == nil {
		return nil
	}
	return func(evt events.Event) {
		payload, err := json.Marshal(evt)
		if err != nil {
			logger.Error("failed to encode event", zap.Error(err))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		client.Publish(ctx, redis.Channel(events.Topic(evt.Type)), payload)
		client.AppendEvent(ctx, map[string]any{
			"id":      evt.ID,
			"type":    evt.Type,
			"round":   evt.Round,
			"payload": string(payload),
		})
	}
}
