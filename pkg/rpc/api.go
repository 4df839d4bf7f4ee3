package rpc

import (
	"context"
	"fmt"
	"net/http"

	"github.com/bunkerwars/engine/pkg/events"
	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/protocol"
)

// TokenResult is the answer to login, register, and token minting.
type TokenResult struct {
	Token  string `json:"token"`
	Player string `json:"player,omitempty"`
	Role   string `json:"role"`
}

// StatusResult is the one-call game overview.
type StatusResult struct {
	Status  ledger.StatusView   `json:"status"`
	Bunkers []ledger.BunkerView `json:"bunkers"`
	Reserve uint64              `json:"reserve"`
}

// MeResult carries the caller's record; Player is nil for a token holder
// who never joined.
type MeResult struct {
	Player *ledger.PlayerView `json:"player"`
	Wallet uint64             `json:"wallet"`
}

// ExitResult is the payout report.
type ExitResult struct {
	Paid   uint64 `json:"paid"`
	Wallet uint64 `json:"wallet"`
}

// HealthResult is the public liveness report.
type HealthResult struct {
	Status string `json:"status"`
	Phase  string `json:"phase"`
	Redis  string `json:"redis,omitempty"`
}

type eventsResult struct {
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}

// Health probes the public liveness route.
func (c *Client) Health(ctx context.Context) (HealthResult, error) {
	var out HealthResult
	err := c.do(ctx, http.MethodGet, healthPath, "", nil, &out)
	return out, err
}

// Login authenticates an operator by password.
func (c *Client) Login(ctx context.Context, username, password string) (TokenResult, error) {
	var out TokenResult
	err := c.do(ctx, http.MethodPost, loginPath, "",
		map[string]string{"username": username, "password": password}, &out)
	return out, err
}

// MintToken asks the admin endpoint for a scoped player or oracle token.
func (c *Client) MintToken(ctx context.Context, adminToken, player, role string) (TokenResult, error) {
	var out TokenResult
	req := protocol.TokenRequest{Player: player, Role: role}
	err := c.do(ctx, http.MethodPost, tokenPath, adminToken, req, &out)
	return out, err
}

// Register self-mints a player token; only open in dev mode.
func (c *Client) Register(ctx context.Context, player string) (TokenResult, error) {
	var out TokenResult
	err := c.do(ctx, http.MethodPost, registerPath, "", map[string]string{"player": player}, &out)
	return out, err
}

// Faucet credits a wallet and returns its new balance.
func (c *Client) Faucet(ctx context.Context, adminToken, player string, amount uint64) (uint64, error) {
	var out struct {
		Wallet uint64 `json:"wallet"`
	}
	req := protocol.FaucetRequest{Player: player, Amount: amount}
	err := c.do(ctx, http.MethodPost, faucetPath, adminToken, req, &out)
	return out.Wallet, err
}

// Status fetches phase, round, bunkers, and the remaining reserve.
func (c *Client) Status(ctx context.Context, token string) (StatusResult, error) {
	var out StatusResult
	err := c.do(ctx, http.MethodGet, statusPath, token, nil, &out)
	return out, err
}

// Bunkers lists all five positions.
func (c *Client) Bunkers(ctx context.Context, token string) ([]ledger.BunkerView, error) {
	var out []ledger.BunkerView
	err := c.do(ctx, http.MethodGet, bunkersPath, token, nil, &out)
	return out, err
}

// CurrentRound fetches the latest round.
func (c *Client) CurrentRound(ctx context.Context, token string) (ledger.RoundView, error) {
	var out ledger.RoundView
	err := c.do(ctx, http.MethodGet, currentRoundPath, token, nil, &out)
	return out, err
}

// Audit fetches the immutable resolve record for a round.
func (c *Client) Audit(ctx context.Context, token string, round uint64) (ledger.AuditEntry, error) {
	var out ledger.AuditEntry
	path := fmt.Sprintf("/api/rounds/%d/audit", round)
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)
	return out, err
}

// RecentEvents fetches the engine's in-proc event tail.
func (c *Client) RecentEvents(ctx context.Context, token string, limit int) ([]events.Event, error) {
	path := recentEventsPath
	if limit > 0 {
		path = fmt.Sprintf("%s?limit=%d", recentEventsPath, limit)
	}
	var out eventsResult
	err := c.do(ctx, http.MethodGet, path, token, nil, &out)
	return out.Events, err
}

// Me fetches the caller's record and wallet.
func (c *Client) Me(ctx context.Context, token string) (MeResult, error) {
	var out MeResult
	err := c.do(ctx, http.MethodGet, mePath, token, nil, &out)
	return out, err
}

// Join stakes a new position.
func (c *Client) Join(ctx context.Context, token string, bunker uint8, amount uint64) (ledger.PlayerView, error) {
	var out ledger.PlayerView
	req := protocol.JoinRequest{Bunker: bunker, Amount: amount}
	err := c.do(ctx, http.MethodPost, joinPath, token, req, &out)
	return out, err
}

// TopUp adds stake to the caller's position.
func (c *Client) TopUp(ctx context.Context, token string, amount uint64) (ledger.PlayerView, error) {
	var out ledger.PlayerView
	req := protocol.TopUpRequest{Amount: amount}
	err := c.do(ctx, http.MethodPost, topUpPath, token, req, &out)
	return out, err
}

// Relocate moves the caller's claim to an adjacent bunker.
func (c *Client) Relocate(ctx context.Context, token string, target uint8) (ledger.PlayerView, error) {
	var out ledger.PlayerView
	req := protocol.RelocateRequest{Target: target}
	err := c.do(ctx, http.MethodPost, relocatePath, token, req, &out)
	return out, err
}

// Exit pays out the caller's claim and vacates the position.
func (c *Client) Exit(ctx context.Context, token string) (ExitResult, error) {
	var out ExitResult
	err := c.do(ctx, http.MethodPost, exitPath, token, nil, &out)
	return out, err
}

// Act submits a sealed round action.
func (c *Client) Act(ctx context.Context, token string, req protocol.ActRequest) error {
	return c.do(ctx, http.MethodPost, actionsPath, token, req, nil)
}

// OpenRound starts the next combat window.
func (c *Client) OpenRound(ctx context.Context, adminToken string) (ledger.RoundView, error) {
	var out ledger.RoundView
	err := c.do(ctx, http.MethodPost, openRoundPath, adminToken, nil, &out)
	return out, err
}

// Resolve submits the oracle's revealed totals and returns the audit.
func (c *Client) Resolve(ctx context.Context, oracleToken string, req protocol.ResolveRequest) (ledger.AuditEntry, error) {
	var out ledger.AuditEntry
	err := c.do(ctx, http.MethodPost, resolvePath, oracleToken, req, &out)
	return out, err
}

// Cleanup evicts one batch from a destroyed bunker.
func (c *Client) Cleanup(ctx context.Context, oracleToken string, bunker uint8, maxBatch int) (ledger.CleanupResult, error) {
	var out ledger.CleanupResult
	req := protocol.CleanupRequest{Bunker: bunker, MaxBatch: maxBatch}
	err := c.do(ctx, http.MethodPost, cleanupPath, oracleToken, req, &out)
	return out, err
}

// Halt freezes the game. Reason is optional.
func (c *Client) Halt(ctx context.Context, adminToken, reason string) (ledger.StatusView, error) {
	var out ledger.StatusView
	var payload any
	if reason != "" {
		payload = map[string]string{"reason": reason}
	}
	err := c.do(ctx, http.MethodPost, haltPath, adminToken, payload, &out)
	return out, err
}

// EmergencyHalt pulls the dead-oracle escape hatch. Any authenticated
// caller may invoke it once the grace window elapses.
func (c *Client) EmergencyHalt(ctx context.Context, token string) (ledger.StatusView, error) {
	var out ledger.StatusView
	err := c.do(ctx, http.MethodPost, emergencyHaltPath, token, nil, &out)
	return out, err
}
