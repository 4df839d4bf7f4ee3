package ledger

import (
	"context"
	"fmt"
	"time"
)

// Read-side projections. Every getter takes the read lock, so a view is a
// consistent snapshot; claim and custody figures are live reads against the
// custodian made under the same snapshot.

// StatusView is the one-call game overview.
type StatusView struct {
	Phase      string     `json:"phase"`
	RoundSeq   uint64     `json:"roundSeq"`
	Round      *RoundView `json:"round,omitempty"`
	CleanupDue []uint8    `json:"cleanupDue,omitempty"`
	HaltedAt   int64      `json:"haltedAt,omitempty"`
	HaltReason string     `json:"haltReason,omitempty"`
}

// RoundView decorates a round with its derived window state.
type RoundView struct {
	Number      uint64 `json:"number"`
	StartAt     int64  `json:"startAt"`
	EndAt       int64  `json:"endAt"`
	Emission    uint64 `json:"emission"`
	State       string `json:"state"`
	ResolvedAt  int64  `json:"resolvedAt,omitempty"`
	Withdrawn   uint64 `json:"withdrawn,omitempty"`
	Spoiled     uint64 `json:"spoiled,omitempty"`
	Dust        uint64 `json:"dust,omitempty"`
	EmergencyAt int64  `json:"emergencyAt,omitempty"`
}

// BunkerView is the public face of one position.
type BunkerView struct {
	ID         uint8   `json:"id"`
	Nominal    uint64  `json:"nominal"`
	ShareIndex uint64  `json:"shareIndex"`
	Custody    uint64  `json:"custody"`
	Destroyed  bool    `json:"destroyed"`
	Members    int     `json:"members"`
	Evicted    uint64  `json:"evicted,omitempty"`
	LastRound  uint64  `json:"lastRound"`
	Neighbors  []uint8 `json:"neighbors"`
}

// PlayerView is a participant record plus the live claim.
type PlayerView struct {
	ID             string `json:"id"`
	Bunker         uint8  `json:"bunker"`
	Nominal        uint64 `json:"nominal"`
	DepositIndex   uint64 `json:"depositIndex"`
	CheckpointAt   int64  `json:"checkpointAt,omitempty"`
	LastActedRound uint64 `json:"lastActedRound,omitempty"`
	Claim          uint64 `json:"claim"`
}

func (e *Engine) roundView(r *Round, now time.Time) *RoundView {
	v := &RoundView{
		Number:   r.Number,
		StartAt:  r.StartAt,
		EndAt:    r.EndAt,
		Emission: r.Emission,
	}
	switch {
	case r.Resolved:
		v.State = "resolved"
		v.ResolvedAt = r.ResolvedAt
		v.Withdrawn = r.Withdrawn
		v.Spoiled = r.Spoiled
		v.Dust = r.Dust
	case r.Closed(now):
		v.State = "closed"
		v.EmergencyAt = r.EndAt + int64(e.rules.GracePeriod()/time.Second)
	default:
		v.State = "open"
	}
	return v
}

// GetStatus reports phase, the current round, and any bunkers awaiting
// cleanup.
func (e *Engine) GetStatus() StatusView {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v := StatusView{
		Phase:      e.st.Meta.Phase.String(),
		RoundSeq:   e.st.Meta.RoundSeq,
		HaltedAt:   e.st.Meta.HaltedAt,
		HaltReason: e.st.Meta.HaltReason,
	}
	if r := e.currentRound(); r != nil {
		v.Round = e.roundView(r, e.now())
	}
	for id := uint8(1); id <= BunkerCount; id++ {
		if e.st.Bunkers[id].Destroyed() {
			v.CleanupDue = append(v.CleanupDue, id)
		}
	}
	return v
}

// GetBunker returns one bunker with its live custody balance.
func (e *Engine) GetBunker(ctx context.Context, id uint8) (BunkerView, error) {
	if !ValidBunker(id) {
		return BunkerView{}, fmt.Errorf("%w: %d", ErrInvalidBunker, id)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bunkerView(ctx, id)
}

// ListBunkers returns all five bunkers.
func (e *Engine) ListBunkers(ctx context.Context) ([]BunkerView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]BunkerView, 0, BunkerCount)
	for id := uint8(1); id <= BunkerCount; id++ {
		v, err := e.bunkerView(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *Engine) bunkerView(ctx context.Context, id uint8) (BunkerView, error) {
	b := e.st.Bunkers[id]
	bal, err := e.custodyOf(ctx, id)
	if err != nil {
		return BunkerView{}, err
	}
	return BunkerView{
		ID:         id,
		Nominal:    b.Nominal,
		ShareIndex: b.ShareIndex,
		Custody:    bal,
		Destroyed:  b.Destroyed(),
		Members:    len(b.Members),
		Evicted:    b.CleanupEvicted,
		LastRound:  b.LastRound,
		Neighbors:  Neighbors(id),
	}, nil
}

// GetPlayer returns a participant with the claim computed live.
func (e *Engine) GetPlayer(ctx context.Context, id string) (PlayerView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p := e.st.Players[id]
	if p == nil {
		return PlayerView{}, fmt.Errorf("%w: %s", ErrNoPlayer, id)
	}
	claim, err := e.claimOf(ctx, p)
	if err != nil {
		return PlayerView{}, err
	}
	return PlayerView{
		ID:             p.ID,
		Bunker:         p.Bunker,
		Nominal:        p.Nominal,
		DepositIndex:   p.DepositIndex,
		CheckpointAt:   p.CheckpointAt,
		LastActedRound: p.LastActedRound,
		Claim:          claim,
	}, nil
}

// GetRound returns one round; number 0 means the current round.
func (e *Engine) GetRound(number uint64) (RoundView, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if number == 0 {
		number = e.st.Meta.RoundSeq
	}
	r, ok := e.st.Rounds[number]
	if !ok {
		return RoundView{}, fmt.Errorf("%w: %d", ErrNoRound, number)
	}
	return *e.roundView(r, e.now()), nil
}

// GetAudit returns the immutable resolve record for a round.
func (e *Engine) GetAudit(round uint64) (*AuditEntry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.st.Audits[round]
	if !ok {
		return nil, fmt.Errorf("%w: round %d", ErrNoAudit, round)
	}
	return a, nil
}

// Phase reports the macro phase.
func (e *Engine) Phase() Phase {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.st.Meta.Phase
}
