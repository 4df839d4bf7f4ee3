package controller

import (
	"encoding/base64"
	"net/http"

	"github.com/bunkerwars/engine/pkg/proofs"
	"github.com/bunkerwars/engine/pkg/protocol"
)

// HandleSubmitAction accepts a sealed round action. The signal vector is
// reconstructed server-side with the canonical tag and the token subject, so
// a proof generated for another identity or another round cannot verify.
func (c *Controller) HandleSubmitAction(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	var req protocol.ActRequest
	if !c.decode(w, r, protocol.KindAct, &req) {
		return
	}

	proof, err := base64.StdEncoding.DecodeString(req.Proof)
	if err != nil {
		respondError(w, http.StatusBadRequest, "proof is not valid base64")
		return
	}

	signals := proofs.Signals{
		Tag:     c.App.Engine.Rules().ActionTag,
		Player:  p.Subject,
		Round:   req.Round,
		Stake:   req.Stake,
		Target:  req.Target,
		Attack:  req.Attack,
		Defense: req.Defense,
	}
	if err := c.App.Engine.SubmitAction(r.Context(), p.Subject, proof, signals); err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "accepted", "round": req.Round})
}
