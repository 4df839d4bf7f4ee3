package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"go.uber.org/zap"

	"github.com/bunkerwars/engine/pkg/protocol"
)

// HandleOpenRound starts the next round. A reserve-exhausted game ends
// instead and reports as a state conflict.
func (c *Controller) HandleOpenRound(w http.ResponseWriter, r *http.Request) {
	n, err := c.App.Engine.OpenRound(r.Context())
	if err != nil {
		c.fail(w, err)
		return
	}
	round, err := c.App.Engine.GetRound(n)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, round)
}

func (c *Controller) HandleHalt(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Reason string `json:"reason"`
	}
	// Body is optional; the engine supplies a default reason.
	_ = json.NewDecoder(r.Body).Decode(&in)

	p, _ := PrincipalFrom(r.Context())
	if err := c.App.Engine.Halt(r.Context(), in.Reason); err != nil {
		c.fail(w, err)
		return
	}
	c.App.Logger.Warn("game halted",
		zap.String("by", p.Subject),
		zap.String("reason", in.Reason))
	respondJSON(w, http.StatusOK, c.App.Engine.GetStatus())
}

// HandleEmergencyHalt is the dead-oracle escape hatch. Any authenticated
// caller may invoke it once the grace window has elapsed.
func (c *Controller) HandleEmergencyHalt(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	if err := c.App.Engine.EmergencyHalt(r.Context()); err != nil {
		c.fail(w, err)
		return
	}
	c.App.Logger.Warn("emergency halt triggered", zap.String("by", p.Subject))
	respondJSON(w, http.StatusOK, c.App.Engine.GetStatus())
}

// HandleFaucet credits a player wallet. Available only with the memory
// custodian; production custody has no mint endpoint.
func (c *Controller) HandleFaucet(w http.ResponseWriter, r *http.Request) {
	if c.App.Faucet == nil {
		respondError(w, http.StatusServiceUnavailable, "faucet unavailable with external custody")
		return
	}
	var req protocol.FaucetRequest
	if !c.decode(w, r, protocol.KindFaucet, &req) {
		return
	}

	c.App.Faucet.Credit(req.Player, req.Amount)
	respondJSON(w, http.StatusOK, map[string]any{
		"player": req.Player,
		"wallet": c.App.Faucet.WalletBalance(req.Player),
	})
}
