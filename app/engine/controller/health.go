package controller

import (
	"net/http"
)

// HandleHealth is the unauthenticated liveness probe. Redis is advisory, so
// a dead broker degrades the report without failing it.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{
		"status": "ok",
		"phase":  c.App.Engine.Phase().String(),
	}
	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(r.Context()); err != nil {
			out["redis"] = "unreachable"
		} else {
			out["redis"] = "ok"
			if n, err := c.App.RedisClient.BacklogLen(r.Context()); err == nil {
				out["backlog"] = n
			}
		}
	}
	respondJSON(w, http.StatusOK, out)
}
