package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/events"
	"github.com/bunkerwars/engine/pkg/redis"
	"github.com/bunkerwars/engine/pkg/retry"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// TODO: In production, restrict to specific origins
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action string `json:"action"` // "subscribe", "unsubscribe", or "replay"
	Topic  string `json:"topic"`  // event topic, or "*" for everything
}

// ServerMessage represents messages sent to WebSocket clients. Forwarded
// events carry their envelope type, backlog entries the type "replay";
// control frames use "subscribed", "unsubscribed", "replayed", "info",
// "error", and "ping".
type ServerMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// backlogReplayLimit caps how many stream entries one replay request returns.
const backlogReplayLimit = 64

// topicSubscriptions tracks which event topics a client wants.
type topicSubscriptions struct {
	mu     sync.RWMutex
	topics map[string]bool
}

func newTopicSubscriptions() *topicSubscriptions {
	return &topicSubscriptions{topics: make(map[string]bool)}
}

func (ts *topicSubscriptions) subscribe(topic string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.topics[topic] = true
}

func (ts *topicSubscriptions) unsubscribe(topic string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	delete(ts.topics, topic)
}

// isSubscribed checks a topic. Wildcard (*) matches all topics.
func (ts *topicSubscriptions) isSubscribed(topic string) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.topics["*"] {
		return true
	}
	return ts.topics[topic]
}

// topicFromChannel strips the redis namespace from a channel name.
func topicFromChannel(channel string) string {
	return strings.TrimPrefix(channel, redis.ChannelPrefix+":")
}

// backlogFrames converts stream entries to replay frames, keeping only those
// whose event type maps to the requested topic. Entries arrive oldest first
// and stay that way. Wildcard matches everything.
func backlogFrames(msgs []goredis.XMessage, topic string) []ServerMessage {
	frames := make([]ServerMessage, 0, len(msgs))
	for _, m := range msgs {
		typ, _ := m.Values["type"].(string)
		if typ == "" {
			continue
		}
		if topic != "*" && events.Topic(typ) != topic {
			continue
		}
		raw, _ := m.Values["payload"].(string)
		var evt map[string]any
		if err := json.Unmarshal([]byte(raw), &evt); err != nil {
			continue
		}
		frames = append(frames, ServerMessage{Type: "replay", Payload: evt})
	}
	return frames
}

// HandleWebSocket upgrades the connection and streams engine events fed
// from redis pub/sub.
//
// Protocol:
// Client sends: {"action": "subscribe", "topic": "game.round"}
// Client sends: {"action": "subscribe", "topic": "*"}
// Client sends: {"action": "unsubscribe", "topic": "game.round"}
// Client sends: {"action": "replay", "topic": "*"}
//
// Server sends event frames typed by the event envelope, plus control
// frames. A replay request returns the matching tail of the Redis event
// backlog so late joiners can catch up before live frames. All goroutines
// have panic recovery to prevent crashes.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}
	if _, ok := c.authenticate(r); !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("WebSocket close", zap.Error(err))
		}
	}()

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newTopicSubscriptions()
	send := make(chan ServerMessage, 256)
	var wg sync.WaitGroup

	spawn := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in WebSocket goroutine",
						zap.String("goroutine", name),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("remote_addr", r.RemoteAddr))
					cancel()
				}
			}()
			fn()
		}()
	}

	spawn("redis-subscriber", func() { c.streamFromRedis(ctx, send, subs) })
	spawn("pinger", func() { c.sendPings(ctx, conn) })
	spawn("writer", func() { c.writeMessages(conn, send) })

	// Blocks until the client disconnects.
	c.readClientMessages(ctx, conn, cancel, subs, send)

	close(send)
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// streamFromRedis holds a pattern subscription on the event channels and
// forwards matching events, reconnecting with exponential backoff and
// jitter when the broker drops.
func (c *Controller) streamFromRedis(ctx context.Context, send chan<- ServerMessage, subs *topicSubscriptions) {
	pattern := redis.ChannelPrefix + ":game.*"

	backoffCfg := retry.Config{
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		Multiplier:    2.0,
		JitterEnabled: true,
	}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		err := c.attemptSubscription(ctx, pattern, send, subs, attempt)
		if ctx.Err() != nil {
			return
		}
		delay := retry.Backoff(backoffCfg, attempt)
		if err != nil {
			c.App.Logger.Warn("Redis subscription failed, will retry",
				zap.Error(err),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay))
		}

		select {
		case send <- ServerMessage{Type: "error", Payload: map[string]any{
			"message":     "event stream lost, reconnecting",
			"retryIn":     delay.Seconds(),
			"recoverable": true,
		}}:
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// attemptSubscription runs one pattern subscription until it fails or the
// context ends. A nil return means the channel closed (broker restart).
func (c *Controller) attemptSubscription(
	ctx context.Context,
	pattern string,
	send chan<- ServerMessage,
	subs *topicSubscriptions,
	attempt int,
) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, pattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("closing redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()
	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("confirm subscription: %w", err)
	}

	if attempt > 1 {
		select {
		case send <- ServerMessage{Type: "info", Payload: map[string]any{"message": "event stream restored"}}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return c.forwardEvents(ctx, pubsub, send, subs)
}

func (c *Controller) forwardEvents(
	ctx context.Context,
	pubsub *goredis.PubSub,
	send chan<- ServerMessage,
	subs *topicSubscriptions,
) error {
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if !subs.isSubscribed(topicFromChannel(msg.Channel)) {
				continue
			}

			var evt map[string]any
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				c.App.Logger.Error("Failed to parse event payload",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}
			typ, _ := evt["type"].(string)
			if typ == "" {
				typ = "event"
			}

			select {
			case send <- ServerMessage{Type: typ, Payload: evt}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// sendPings keeps the connection alive; pongs reset the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (c *Controller) writeMessages(conn *websocket.Conn, send <-chan ServerMessage) {
	for msg := range send {
		if err := conn.WriteJSON(msg); err != nil {
			c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
			return
		}
	}
}

// readClientMessages handles subscription requests and detects closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *topicSubscriptions, send chan<- ServerMessage) {
	resetDeadline := func() error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	}
	if err := resetDeadline(); err != nil {
		c.App.Logger.Error("Failed to set read deadline", zap.Error(err))
		return
	}
	conn.SetPongHandler(func(string) error { return resetDeadline() })

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg ClientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.App.Logger.Debug("WebSocket read error", zap.Error(err))
				}
				cancel()
				return
			}
			if err := resetDeadline(); err != nil {
				return
			}

			if msg.Topic == "" {
				send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "topic is required"}}
				continue
			}
			switch msg.Action {
			case "subscribe":
				subs.subscribe(msg.Topic)
				send <- ServerMessage{Type: "subscribed", Payload: map[string]string{"topic": msg.Topic}}
			case "unsubscribe":
				subs.unsubscribe(msg.Topic)
				send <- ServerMessage{Type: "unsubscribed", Payload: map[string]string{"topic": msg.Topic}}
			case "replay":
				msgs, err := c.App.RedisClient.RecentEvents(ctx, backlogReplayLimit)
				if err != nil {
					c.App.Logger.Warn("Backlog replay failed", zap.Error(err))
					send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "backlog unavailable"}}
					continue
				}
				frames := backlogFrames(msgs, msg.Topic)
				for _, f := range frames {
					send <- f
				}
				send <- ServerMessage{Type: "replayed", Payload: map[string]any{"topic": msg.Topic, "count": len(frames)}}
			default:
				send <- ServerMessage{Type: "error", Payload: map[string]string{"message": "unknown action: " + msg.Action}}
			}
		}
	}
}
