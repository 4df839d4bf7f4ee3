package events

import (
	"time"

	"github.com/google/uuid"
)

// Lifecycle event types published by the engine.
const (
	TypeRoundOpened         = "round.opened"
	TypeRoundClosed         = "round.closed"
	TypeRoundResolved       = "round.resolved"
	TypeBunkerDamaged       = "bunker.damaged"
	TypeBunkerDestroyed     = "bunker.destroyed"
	TypeBunkerReinitialized = "bunker.reinitialized"
	TypeCleanupProgress     = "cleanup.progress"
	TypeEmission            = "emission.distributed"
	TypePlayerJoined        = "player.joined"
	TypePlayerToppedUp      = "player.topped_up"
	TypePlayerRelocated     = "player.relocated"
	TypePlayerExited        = "player.exited"
	TypeActionAccepted      = "action.accepted"
	TypeGameHalted          = "game.halted"
	TypeGameEnded           = "game.ended"
)

// Redis channels, one per entity family. WebSocket clients subscribe to
// these topics; the wildcard "game.*" covers everything.
const (
	TopicRound  = "game.round"
	TopicBunker = "game.bunker"
	TopicPlayer = "game.player"
	TopicPhase  = "game.phase"
)

// Event is the wire envelope for every published lifecycle event.
// Action events deliberately omit targets and payloads: amounts stay hidden
// until the oracle reveals them at resolve.
type Event struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Round uint64         `json:"round"`
	At    time.Time      `json:"at"`
	Data  map[string]any `json:"data,omitempty"`
}

// New stamps a fresh envelope.
func New(typ string, round uint64, data map[string]any) Event {
	return Event{
		ID:    uuid.NewString(),
		Type:  typ,
		Round: round,
		At:    time.Now().UTC(),
		Data:  data,
	}
}

// Topic routes an event type to its redis channel.
func Topic(typ string) string {
	switch {
	case typ == TypeGameHalted || typ == TypeGameEnded:
		return TopicPhase
	case typ == TypeRoundOpened || typ == TypeRoundClosed || typ == TypeRoundResolved:
		return TopicRound
	case typ == TypePlayerJoined || typ == TypePlayerToppedUp ||
		typ == TypePlayerRelocated || typ == TypePlayerExited || typ == TypeActionAccepted:
		return TopicPlayer
	default:
		return TopicBunker
	}
}
