// Package protocol is the type/range boundary for mutating requests. Every
// body is validated against an embedded JSON Schema before it is decoded, so
// the engine only ever sees bunker ids 1..5, amounts that fit a signed 64-bit
// column, and totals arrays of exactly five entries.
package protocol

// Request kinds, one per mutating endpoint.
const (
	KindJoin     = "join"
	KindTopUp    = "topup"
	KindRelocate = "relocate"
	KindAct      = "act"
	KindResolve  = "resolve"
	KindCleanup  = "cleanup"
	KindFaucet   = "faucet"
	KindToken    = "token"
)

var kinds = []string{
	KindJoin, KindTopUp, KindRelocate, KindAct,
	KindResolve, KindCleanup, KindFaucet, KindToken,
}

// MaxBodyBytes caps request bodies before schema validation runs.
const MaxBodyBytes = 64 * 1024

// JoinRequest stakes the caller into a bunker. Identity comes from the
// bearer token, never the body.
type JoinRequest struct {
	Bunker uint8  `json:"bunker"`
	Amount uint64 `json:"amount"`
}

type TopUpRequest struct {
	Amount uint64 `json:"amount"`
}

type RelocateRequest struct {
	Target uint8 `json:"target"`
}

// ActRequest carries the caller's sealed round action. Attack and Defense are
// opaque encrypted payloads; Proof binds them to the signal fields.
type ActRequest struct {
	Round   uint64 `json:"round"`
	Target  uint8  `json:"target"`
	Stake   uint64 `json:"stake"`
	Attack  string `json:"attack,omitempty"`
	Defense string `json:"defense,omitempty"`
	Proof   string `json:"proof"`
}

// ResolveRequest is the oracle's revealed totals for a closed round.
type ResolveRequest struct {
	Round    uint64    `json:"round"`
	Attacks  [5]uint64 `json:"attacks"`
	Defenses [5]uint64 `json:"defenses"`
}

type CleanupRequest struct {
	Bunker   uint8 `json:"bunker"`
	MaxBatch int   `json:"max_batch,omitempty"`
}

// FaucetRequest credits a wallet out of thin air. Dev and admin use only.
type FaucetRequest struct {
	Player string `json:"player"`
	Amount uint64 `json:"amount"`
}

// TokenRequest asks for a scoped bearer token. Role defaults to player;
// admin tokens are never minted over the API.
type TokenRequest struct {
	Player string `json:"player"`
	Role   string `json:"role,omitempty"`
}
