// Package ledger implements the bunker-war accounting engine: five fixed
// positions holding pooled stake, proportional ownership tracked through a
// fixed-point share index, a round state machine driven by a trusted oracle,
// and batched cleanup of destroyed positions. Every mutating operation is a
// serialized, all-or-nothing transaction; see engine.go for the write path.
package ledger

import "time"

const (
	// BunkerCount is fixed: bunkers are numbered 1..5.
	BunkerCount = 5
	// HubBunker is adjacent to every other bunker and draws a double
	// emission share.
	HubBunker uint8 = 3
	// IndexBase is the fixed-point scale a bunker's share index starts at.
	// An index of 0 means destroyed and must never be divided by.
	IndexBase uint64 = 1_000_000_000_000
	// MaxAmount bounds every stake, emission, and index value so state
	// fits a signed 64-bit column. Enforced at the protocol boundary.
	MaxAmount uint64 = 1<<63 - 1
)

// Phase is the macro state of the whole game.
type Phase uint8

const (
	PhaseSetup Phase = iota
	PhaseActive
	PhaseHalted
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseSetup:
		return "setup"
	case PhaseActive:
		return "active"
	case PhaseHalted:
		return "halted"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ParsePhase inverts Phase.String; unknown input maps to PhaseSetup.
func ParsePhase(s string) Phase {
	switch s {
	case "active":
		return PhaseActive
	case "halted":
		return PhaseHalted
	case "ended":
		return PhaseEnded
	default:
		return PhaseSetup
	}
}

// Player is one participant record. Bunker 0 means unpositioned; a nonzero
// bunker implies a nonzero DepositIndex. LastActedRound survives exit and
// eviction so an identity cannot act twice in one round by leaving and
// rejoining.
type Player struct {
	ID             string `json:"id"`
	Bunker         uint8  `json:"bunker"`
	Nominal        uint64 `json:"nominal"`
	DepositIndex   uint64 `json:"depositIndex"`
	CheckpointAt   int64  `json:"checkpointAt"`
	LastActedRound uint64 `json:"lastActedRound"`
	// MemberOrd is the player's slot in its bunker's member list; kept in
	// sync by the engine, only meaningful while positioned.
	MemberOrd int `json:"-"`
}

func (p *Player) clone() *Player {
	cp := *p
	return &cp
}

// Positioned reports whether the player currently occupies a bunker.
func (p *Player) Positioned() bool { return p != nil && p.Bunker != 0 }

// Bunker is one of the five fixed positions. Nominal is the checkpointed
// stake total and may drift from true custody under rounding; custody is
// authoritative wherever the two disagree. ShareIndex 0 marks destruction.
type Bunker struct {
	ID             uint8    `json:"id"`
	Nominal        uint64   `json:"nominal"`
	ShareIndex     uint64   `json:"shareIndex"`
	LastRound      uint64   `json:"lastRound"`
	Members        []string `json:"members"`
	CleanupEvicted uint64   `json:"cleanupEvicted"`
}

func (b *Bunker) clone() *Bunker {
	cp := *b
	cp.Members = append([]string(nil), b.Members...)
	return &cp
}

// Destroyed reports whether the bunker is awaiting cleanup/reinit.
func (b *Bunker) Destroyed() bool { return b.ShareIndex == 0 }

// Round is one combat window. Emission is frozen at open and immutable.
// Withdrawn/Spoiled/Dust are distribution accounting filled in at resolve.
type Round struct {
	Number     uint64 `json:"number"`
	StartAt    int64  `json:"startAt"`
	EndAt      int64  `json:"endAt"`
	Emission   uint64 `json:"emission"`
	Resolved   bool   `json:"resolved"`
	ResolvedAt int64  `json:"resolvedAt,omitempty"`
	Withdrawn  uint64 `json:"withdrawn"`
	Spoiled    uint64 `json:"spoiled"`
	Dust       uint64 `json:"dust"`
}

func (r *Round) clone() *Round {
	cp := *r
	return &cp
}

// Closed reports whether the round's window has passed at the given time.
func (r *Round) Closed(now time.Time) bool { return now.Unix() >= r.EndAt }

// AuditEntry is the immutable public record written at resolve: the
// oracle's revealed totals verbatim, the damage actually applied, and the
// distribution accounting. Array slot i belongs to bunker i+1.
type AuditEntry struct {
	Round      uint64              `json:"round"`
	Attacks    [BunkerCount]uint64 `json:"attacks"`
	Defenses   [BunkerCount]uint64 `json:"defenses"`
	Damages    [BunkerCount]uint64 `json:"damages"`
	Balances   [BunkerCount]uint64 `json:"balances"`
	IndexAfter [BunkerCount]uint64 `json:"indexAfter"`
	Shares     [BunkerCount]uint64 `json:"shares"`
	Destroyed  []uint8             `json:"destroyed"`
	Requested  uint64              `json:"requested"`
	Withdrawn  uint64              `json:"withdrawn"`
	Spoiled    uint64              `json:"spoiled"`
	Dust       uint64              `json:"dust"`
	CreatedAt  int64               `json:"createdAt"`
}

// GameMeta is the scalar game state persisted alongside the tables.
type GameMeta struct {
	Phase      Phase  `json:"phase"`
	RoundSeq   uint64 `json:"roundSeq"`
	HaltedAt   int64  `json:"haltedAt,omitempty"`
	HaltReason string `json:"haltReason,omitempty"`
}

// State is the full authoritative ledger. The engine owns exactly one and
// serializes every mutation against it.
type State struct {
	Meta    GameMeta
	Players map[string]*Player
	Bunkers [BunkerCount + 1]*Bunker // slot 0 unused
	Rounds  map[uint64]*Round
	Audits  map[uint64]*AuditEntry
}

// NewState builds the genesis state: five live bunkers at IndexBase, no
// players, no rounds, phase SETUP.
func NewState() *State {
	st := &State{
		Players: make(map[string]*Player),
		Rounds:  make(map[uint64]*Round),
		Audits:  make(map[uint64]*AuditEntry),
	}
	for id := uint8(1); id <= BunkerCount; id++ {
		st.Bunkers[id] = &Bunker{ID: id, ShareIndex: IndexBase}
	}
	return st
}

// Rules are the game parameters fixed at boot. EmissionPerRound is the
// amount frozen into each round at open; the reserve may still pay less.
type Rules struct {
	RoundDuration    time.Duration
	GraceFactor      uint32
	MinJoin          uint64
	EmissionPerRound uint64
	ActionTag        string
	MaxCleanupBatch  int
}

// DefaultRules mirror the config defaults.
func DefaultRules() Rules {
	return Rules{
		RoundDuration:    time.Hour,
		GraceFactor:      3,
		MinJoin:          1_000,
		EmissionPerRound: 6_000_000,
		ActionTag:        "bunkerwars/act/v1",
		MaxCleanupBatch:  100,
	}
}

// GracePeriod is how long a round may sit closed-unresolved before
// EmergencyHalt becomes legal.
func (r Rules) GracePeriod() time.Duration {
	return r.RoundDuration * time.Duration(r.GraceFactor)
}

// CleanupResult reports one cleanup batch.
type CleanupResult struct {
	Bunker        uint8 `json:"bunker"`
	Evicted       int   `json:"evicted"`
	Remaining     int   `json:"remaining"`
	Reinitialized bool  `json:"reinitialized"`
}
