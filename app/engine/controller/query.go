package controller

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// HandleStatus returns the one-call overview: phase, round, bunkers, reserve.
func (c *Controller) HandleStatus(w http.ResponseWriter, r *http.Request) {
	bunkers, err := c.App.Engine.ListBunkers(r.Context())
	if err != nil {
		c.fail(w, err)
		return
	}
	avail, err := c.App.Reserve.Available(r.Context())
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":  c.App.Engine.GetStatus(),
		"bunkers": bunkers,
		"reserve": avail,
	})
}

func (c *Controller) HandleBunkers(w http.ResponseWriter, r *http.Request) {
	bunkers, err := c.App.Engine.ListBunkers(r.Context())
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, bunkers)
}

func (c *Controller) HandleBunker(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 8)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid bunker id")
		return
	}
	view, err := c.App.Engine.GetBunker(r.Context(), uint8(id))
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (c *Controller) HandleCurrentRound(w http.ResponseWriter, r *http.Request) {
	view, err := c.App.Engine.GetRound(0)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

func (c *Controller) HandleRound(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(mux.Vars(r)["n"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid round number")
		return
	}
	view, err := c.App.Engine.GetRound(n)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// HandleAudit serves the immutable resolve record for a round.
func (c *Controller) HandleAudit(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.ParseUint(mux.Vars(r)["n"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid round number")
		return
	}
	audit, err := c.App.Engine.GetAudit(n)
	if err != nil {
		c.fail(w, err)
		return
	}
	respondJSON(w, http.StatusOK, audit)
}

// HandleRecentEvents serves the in-proc ring buffer tail.
func (c *Controller) HandleRecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		limit = n
	}
	evts := c.App.Bus.Recent(limit)
	respondJSON(w, http.StatusOK, map[string]any{"events": evts, "count": len(evts)})
}
