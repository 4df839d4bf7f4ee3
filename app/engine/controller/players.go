package controller

import (
	"errors"
	"net/http"

	"github.com/bunkerwars/engine/pkg/ledger"
	"github.com/bunkerwars/engine/pkg/protocol"
)

// HandleMe returns the caller's record, live claim, and wallet balance.
// A token holder who never joined gets a null record rather than a 404.
func (c *Controller) HandleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	out := map[string]any{"player": nil}
	view, err := c.App.Engine.GetPlayer(r.Context(), p.Subject)
	switch {
	case err == nil:
		out["player"] = view
	case errors.Is(err, ledger.ErrNoPlayer):
	default:
		c.fail(w, err)
		return
	}
	if c.App.Faucet != nil {
		out["wallet"] = c.App.Faucet.WalletBalance(p.Subject)
	}
	respondJSON(w, http.StatusOK, out)
}

func (c *Controller) HandleJoin(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req protocol.JoinRequest
	if !c.decode(w, r, protocol.KindJoin, &req) {
		return
	}

	if err := c.App.Engine.Join(r.Context(), p.Subject, req.Bunker, req.Amount); err != nil {
		c.fail(w, err)
		return
	}
	view, err := c.App.Engine.GetPlayer(r.Context(), p.Subject)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (c *Controller) HandleTopUp(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req protocol.TopUpRequest
	if !c.decode(w, r, protocol.KindTopUp, &req) {
		return
	}

	if err := c.App.Engine.TopUp(r.Context(), p.Subject, req.Amount); err != nil {
		c.fail(w, err)
		return
	}
	view, err := c.App.Engine.GetPlayer(r.Context(), p.Subject)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (c *Controller) HandleRelocate(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req protocol.RelocateRequest
	if !c.decode(w, r, protocol.KindRelocate, &req) {
		return
	}

	if err := c.App.Engine.Relocate(r.Context(), p.Subject, req.Target); err != nil {
		c.fail(w, err)
		return
	}
	view, err := c.App.Engine.GetPlayer(r.Context(), p.Subject)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// HandleExit pays out the caller's claim and vacates their position.
func (c *Controller) HandleExit(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())

	paid, err := c.App.Engine.Exit(r.Context(), p.Subject)
	if err != nil {
		c.fail(w, err)
		return
	}
	out := map[string]any{"paid": paid}
	if c.App.Faucet != nil {
		out["wallet"] = c.App.Faucet.WalletBalance(p.Subject)
	}
	respondJSON(w, http.StatusOK, out)
}
