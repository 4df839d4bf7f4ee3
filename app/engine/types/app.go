package types

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/config"
	"github.com/bunkerwars/engine/pkg/custody"
	"github.com/bunkerwars/engine/pkg/db"
	"github.com/bunkerwars/engine/pkg/events"
	"github.com/bunkerwars/engine/pkg/journal"
	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/redis"
	"github.com/bunkerwars/engine/pkg/reserve"
)

// User is a credentialed operator account (admin or oracle). Player
// identities are token subjects only and never appear here.
type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"-"`
	Role     string `json:"role"`
}

type App struct {
	Config  *config.Config
	Engine  *ledger.Engine
	Store   *db.Store
	Journal *journal.AuditJournal
	Bus     *events.Bus

	Custodian custody.Custodian
	// Faucet is set when the memory custodian is in use; it backs the dev
	// faucet endpoint and wallet introspection. Nil in production wiring.
	Faucet  *custody.Memory
	Reserve reserve.Reserve

	RedisClient *redis.Client
	Logger      *zap.Logger
	Server      *http.Server
	Cron        *cron.Cron
}

// Start runs the HTTP server and scheduler until ctx is cancelled, then
// shuts everything down in dependency order.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
	}
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}
	_ = a.Server.Shutdown(shutdownCtx)

	a.Bus.Close()
	if a.Journal != nil {
		if err := a.Journal.Close(); err != nil {
			a.Logger.Error("failed to close journal", zap.Error(err))
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Logger.Error("failed to close redis client", zap.Error(err))
		}
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("failed to close store", zap.Error(err))
	}

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
