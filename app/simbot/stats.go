package simbot

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/rpc"
)

// opStats accumulates one operation's counters. Shared across bot
// goroutines, so every field is an atomic.
type opStats struct {
	attempts  atomic.Int64
	accepted  atomic.Int64
	rejected  atomic.Int64
	failed    atomic.Int64
	latencyNs atomic.Int64
	maxNs     atomic.Int64
}

// Stats aggregates per-operation outcomes across the whole roster.
type Stats struct {
	ops *xsync.MapOf[string, *opStats]
}

func NewStats() *Stats {
	return &Stats{ops: xsync.NewMapOf[string, *opStats]()}
}

// Observe records one call. A nil error counts as accepted, an engine
// refusal as rejected, anything else as failed. Rejections are healthy
// traffic here: bots probe the rules on purpose.
func (s *Stats) Observe(op string, took time.Duration, err error) {
	st, _ := s.ops.LoadOrStore(op, &opStats{})
	st.attempts.Add(1)
	st.latencyNs.Add(int64(took))
	for {
		cur := st.maxNs.Load()
		if int64(took) <= cur || st.maxNs.CompareAndSwap(cur, int64(took)) {
			break
		}
	}

	switch {
	case err == nil:
		st.accepted.Add(1)
	case rpc.Rejected(err):
		st.rejected.Add(1)
	default:
		st.failed.Add(1)
	}
}

// Failed reports the total count of non-rejection errors across all ops.
func (s *Stats) Failed() int64 {
	var total int64
	s.ops.Range(func(_ string, st *opStats) bool {
		total += st.failed.Load()
		return true
	})
	return total
}

// Report logs one summary line per operation.
func (s *Stats) Report(logger *zap.Logger) {
	s.ops.Range(func(op string, st *opStats) bool {
		attempts := st.attempts.Load()
		var avg time.Duration
		if attempts > 0 {
			avg = time.Duration(st.latencyNs.Load() / attempts)
		}
		logger.Info("Operation summary",
			zap.String("op", op),
			zap.Int64("attempts", attempts),
			zap.Int64("accepted", st.accepted.Load()),
			zap.Int64("rejected", st.rejected.Load()),
			zap.Int64("failed", st.failed.Load()),
			zap.Duration("avgLatency", avg),
			zap.Duration("maxLatency", time.Duration(st.maxNs.Load())),
		)
		return true
	})
}
