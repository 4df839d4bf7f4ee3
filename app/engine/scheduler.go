package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/bunkerwars/engine/app/engine/types"
	"github.com/bunkerwars/engine/pkg/events"
	"github.com/bunkerwars/engine/pkg/ledger"
)

// scheduler owns the periodic duties the engine cannot do lazily: announcing
// wall-clock round closes, warning when the oracle is late, and optionally
// opening the next round.
type scheduler struct {
	app *types.App
	// once-per-round guards, keyed "closed:<n>" and "grace:<n>".
	notified *xsync.MapOf[string, bool]
}

// NewScheduler registers the tick job and returns the cron. The caller
// starts and stops it through the app lifecycle.
func NewScheduler(app *types.App) (*cron.Cron, error) {
	s := &scheduler{
		app:      app,
		notified: xsync.NewMapOf[string, bool](),
	}
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	if _, err := c.AddFunc(app.Config.Scheduler.Spec, s.tick); err != nil {
		return nil, fmt.Errorf("register tick job: %w", err)
	}
	return c, nil
}

func (s *scheduler) tick() {
	st := s.app.Engine.GetStatus()
	if st.Round == nil {
		return
	}

	switch st.Round.State {
	case "closed":
		s.announceClose(st.Round)
		s.warnPastGrace(st.Round)
	case "resolved":
		if s.app.Config.Scheduler.AutoOpen {
			s.autoOpen()
		}
	}
}

func (s *scheduler) announceClose(r *ledger.RoundView) {
	key := fmt.Sprintf("closed:%d", r.Number)
	if _, loaded := s.notified.LoadOrStore(key, true); loaded {
		return
	}
	s.app.Bus.Publish(events.New(events.TypeRoundClosed, r.Number, map[string]any{
		"end_at": r.EndAt,
	}))
	s.app.Logger.Info("round closed, awaiting oracle",
		zap.Uint64("round", r.Number),
		zap.Int64("endAt", r.EndAt))
}

func (s *scheduler) warnPastGrace(r *ledger.RoundView) {
	if r.EmergencyAt == 0 || time.Now().Unix() < r.EmergencyAt {
		return
	}
	key := fmt.Sprintf("grace:%d", r.Number)
	if _, loaded := s.notified.LoadOrStore(key, true); loaded {
		return
	}
	s.app.Logger.Warn("round unresolved past grace window, emergency halt is now legal",
		zap.Uint64("round", r.Number),
		zap.Int64("emergencyAt", r.EmergencyAt))
}

func (s *scheduler) autoOpen() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := s.app.Engine.OpenRound(ctx)
	switch {
	case err == nil:
		s.app.Logger.Info("round opened automatically", zap.Uint64("round", n))
	case errors.Is(err, ledger.ErrState):
		// Routine: cleanup pending, reserve exhausted, game halted.
		s.app.Logger.Debug("auto-open skipped", zap.Error(err))
	default:
		s.app.Logger.Error("auto-open failed", zap.Error(err))
	}
}
