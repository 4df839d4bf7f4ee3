// Package redis fans engine events out to websocket subscribers and keeps a
// capped stream of recent events for late joiners. The engine runs fine
// without it; surfaces that need it degrade instead of failing the process.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/utils"
)

const (
	// ChannelPrefix namespaces every pub/sub channel. Subscribing to
	// "bunkerwars:game.*" receives the full feed.
	ChannelPrefix = "bunkerwars"

	// EventStream is the capped backlog replayed to late joiners.
	EventStream = "bunkerwars:events"

	DefaultStreamMaxLen = 4096
)

// Channel maps an event topic to its namespaced pub/sub channel.
func Channel(topic string) string {
	return ChannelPrefix + ":" + topic
}

// Client wraps go-redis for event fan-out. Publishes are best-effort; a dead
// broker must never roll back a committed round.
type Client struct {
	rdb          *redis.Client
	log          *zap.Logger
	streamMaxLen int64
}

// NewClient connects using environment configuration:
//   - REDIS_HOST (default "localhost")
//   - REDIS_PORT (default "6379")
//   - REDIS_PASSWORD (default "")
//   - REDIS_DB (default 0)
//   - REDIS_STREAM_MAXLEN (default 4096, 0 = uncapped)
func NewClient(ctx context.Context, log *zap.Logger) (*Client, error) {
	addr := fmt.Sprintf("%s:%s", utils.Env("REDIS_HOST", "localhost"), utils.Env("REDIS_PORT", "6379"))
	db := utils.EnvInt("REDIS_DB", 0)
	streamMaxLen := int64(utils.EnvInt("REDIS_STREAM_MAXLEN", DefaultStreamMaxLen))

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: utils.Env("REDIS_PASSWORD", ""),
		DB:       db,

		PoolSize:     10,
		MinIdleConns: 2,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}

	log.Info("connected to redis",
		zap.String("addr", addr),
		zap.Int("db", db),
		zap.Int64("streamMaxLen", streamMaxLen))

	return &Client{rdb: rdb, log: log, streamMaxLen: streamMaxLen}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Publish sends payload to a pub/sub channel. Errors are logged, not
// returned; event delivery is advisory.
func (c *Client) Publish(ctx context.Context, channel string, payload any) {
	if err := c.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		c.log.Warn("redis publish failed",
			zap.String("channel", channel),
			zap.Error(err))
	}
}

// PSubscribe listens on channel patterns, e.g. "bunkerwars:game.*".
// The caller closes the PubSub.
func (c *Client) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	c.log.Debug("subscribing to redis patterns", zap.Strings("patterns", patterns))
	return c.rdb.PSubscribe(ctx, patterns...)
}

func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// AppendEvent adds an event's fields to the capped backlog stream and returns
// the entry id, or "" on failure. Best-effort like Publish.
func (c *Client) AppendEvent(ctx context.Context, values map[string]any) string {
	args := &redis.XAddArgs{
		Stream: EventStream,
		Values: values,
	}
	if c.streamMaxLen > 0 {
		args.MaxLen = c.streamMaxLen
		args.Approx = true
	}
	id, err := c.rdb.XAdd(ctx, args).Result()
	if err != nil {
		c.log.Warn("redis stream append failed", zap.Error(err))
		return ""
	}
	return id
}

// RecentEvents returns up to count backlog entries, oldest first.
func (c *Client) RecentEvents(ctx context.Context, count int64) ([]redis.XMessage, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, EventStream, "+", "-", count).Result()
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// BacklogLen reports how many entries the event stream currently holds.
func (c *Client) BacklogLen(ctx context.Context) (int64, error) {
	return c.rdb.XLen(ctx, EventStream).Result()
}
