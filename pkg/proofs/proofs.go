// Package proofs abstracts the zero-knowledge action-proof verifier. The
// engine treats verification as a pure oracle: no side effects, no state.
// Binding of a proof to (player, round, stake) happens in the engine before
// anything here is invoked.
package proofs

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
)

// Signals is the public-signal vector a proof commits to. Tag is the
// engine's domain separator; Attack and Defense carry the opaque encrypted
// mint payloads the proof vouches for.
type Signals struct {
	Tag     string `json:"tag"`
	Player  string `json:"player"`
	Round   uint64 `json:"round"`
	Stake   uint64 `json:"stake"`
	Target  uint8  `json:"target"`
	Attack  string `json:"attack"`
	Defense string `json:"defense"`
}

// Vector is the canonical byte encoding verifiers check proofs against.
func (s Signals) Vector() []byte {
	b, _ := json.Marshal(s)
	return b
}

type Verifier interface {
	Verify(ctx context.Context, proof []byte, signals Signals) (bool, error)
}

// Static verifies proofs as HMAC-SHA256 over the signal vector under a
// shared secret. It stands in for the real circuit verifier in dev mode and
// tests; simbot produces matching proofs via Prove.
type Static struct {
	secret []byte
}

func NewStatic(secret string) *Static {
	return &Static{secret: []byte(secret)}
}

var _ Verifier = (*Static)(nil)

func (s *Static) Verify(_ context.Context, proof []byte, signals Signals) (bool, error) {
	return hmac.Equal(proof, s.Prove(signals)), nil
}

// Prove returns the proof bytes Verify will accept for the given signals.
func (s *Static) Prove(signals Signals) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(signals.Vector())
	return mac.Sum(nil)
}
