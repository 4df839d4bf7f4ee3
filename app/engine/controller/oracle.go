package controller

import (
	"net/http"

	"github.com/bunkerwars/engine/pkg/protocol"
)

// HandleResolve applies the oracle's revealed combat totals to a closed
// round. Totals are recorded verbatim in the audit regardless of outcome.
func (c *Controller) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req protocol.ResolveRequest
	if !c.decode(w, r, protocol.KindResolve, &req) {
		return
	}

	if err := c.App.Engine.Resolve(r.Context(), req.Round, req.Attacks, req.Defenses); err != nil {
		c.fail(w, err)
		return
	}
	audit, err := c.App.Engine.GetAudit(req.Round)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, audit)
}

// HandleCleanup evicts a batch of members from a destroyed bunker.
func (c *Controller) HandleCleanup(w http.ResponseWriter, r *http.Request) {
	var req protocol.CleanupRequest
	if !c.decode(w, r, protocol.KindCleanup, &req) {
		return
	}

	res, err := c.App.Engine.Cleanup(r.Context(), req.Bunker, req.MaxBatch)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}
