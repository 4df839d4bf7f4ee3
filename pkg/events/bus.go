package events

import (
	"sync"

	"go.uber.org/zap"
)

const DefaultBusCapacity = 256

// Mirror forwards a committed event beyond the process, typically to redis.
// It runs on the bus's forwarding goroutine, never on the engine's.
type Mirror func(evt Event)

// Bus retains the newest events in memory for the query surface and hands
// each one to the mirror off the engine's hot path. Publish never blocks;
// when the forwarding queue is full the mirror copy is dropped, the in-proc
// ring is not.
type Bus struct {
	mu   sync.RWMutex
	ring []Event
	next int
	full bool

	mirror Mirror
	feed   chan Event
	log    *zap.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

func NewBus(capacity int, mirror Mirror, log *zap.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultBusCapacity
	}
	b := &Bus{
		ring:   make([]Event, capacity),
		mirror: mirror,
		log:    log.Named("events"),
	}
	if mirror != nil {
		b.feed = make(chan Event, capacity)
		b.wg.Add(1)
		go b.forward()
	}
	return b
}

// Publish satisfies the engine's event sink.
func (b *Bus) Publish(evt Event) {
	b.mu.Lock()
	b.ring[b.next] = evt
	b.next++
	if b.next == len(b.ring) {
		b.next = 0
		b.full = true
	}
	b.mu.Unlock()

	if b.feed == nil {
		return
	}
	select {
	case b.feed <- evt:
	default:
		b.log.Debug("mirror queue full, dropping event", zap.String("type", evt.Type))
	}
}

// Recent returns up to limit retained events, oldest first.
func (b *Bus) Recent(limit int) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := b.next
	if b.full {
		n = len(b.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Event, 0, limit)
	start := b.next - limit
	for i := 0; i < limit; i++ {
		idx := (start + i + len(b.ring)) % len(b.ring)
		out = append(out, b.ring[idx])
	}
	return out
}

// Close drains the forwarding queue and stops the mirror goroutine.
func (b *Bus) Close() {
	b.once.Do(func() {
		if b.feed != nil {
			close(b.feed)
		}
	})
	b.wg.Wait()
}

func (b *Bus) forward() {
	defer b.wg.Done()
	for evt := range b.feed {
		b.mirror(evt)
	}
}
