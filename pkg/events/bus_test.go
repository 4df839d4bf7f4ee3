package events_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/bunkerwars/engine/pkg/events"
)

func publishN(bus *events.Bus, n int) {
	for i := 1; i <= n; i++ {
		bus.Publish(events.New(fmt.Sprintf("test.%d", i), uint64(i), nil))
	}
}

func TestBus_RecentKeepsChronologicalOrder(t *testing.T) {
	bus := events.NewBus(8, nil, zaptest.NewLogger(t))
	defer bus.Close()

	publishN(bus, 3)

	got := bus.Recent(0)
	require.Len(t, got, 3)
	assert.Equal(t, "test.1", got[0].Type)
	assert.Equal(t, "test.3", got[2].Type)
}

func TestBus_RingDropsOldest(t *testing.T) {
	bus := events.NewBus(4, nil, zaptest.NewLogger(t))
	defer bus.Close()

	publishN(bus, 10)

	got := bus.Recent(0)
	require.Len(t, got, 4)
	assert.Equal(t, "test.7", got[0].Type)
	assert.Equal(t, "test.10", got[3].Type)

	got = bus.Recent(2)
	require.Len(t, got, 2)
	assert.Equal(t, "test.9", got[0].Type)
	assert.Equal(t, "test.10", got[1].Type)
}

func TestBus_MirrorSeesEveryEvent(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	mirror := func(evt events.Event) {
		mu.Lock()
		seen = append(seen, evt.Type)
		mu.Unlock()
	}

	bus := events.NewBus(16, mirror, zaptest.NewLogger(t))
	publishN(bus, 5)
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"test.1", "test.2", "test.3", "test.4", "test.5"}, seen)
}

func TestBus_CloseIsIdempotent(t *testing.T) {
	bus := events.NewBus(4, func(events.Event) {}, zaptest.NewLogger(t))
	bus.Close()
	bus.Close()
}

func TestTopic_RoutesByFamily(t *testing.T) {
	assert.Equal(t, events.TopicRound, events.Topic(events.TypeRoundOpened))
	assert.Equal(t, events.TopicRound, events.Topic(events.TypeRoundResolved))
	assert.Equal(t, events.TopicPlayer, events.Topic(events.TypePlayerJoined))
	assert.Equal(t, events.TopicPlayer, events.Topic(events.TypeActionAccepted))
	assert.Equal(t, events.TopicBunker, events.Topic(events.TypeBunkerDestroyed))
	assert.Equal(t, events.TopicBunker, events.Topic(events.TypeEmission))
	assert.Equal(t, events.TopicPhase, events.Topic(events.TypeGameHalted))
	assert.Equal(t, events.TopicPhase, events.Topic(events.TypeGameEnded))
}
