package handlers

import (
	"net/http"

	"coinboard/backend-go/internal/models"
)

// Global always answers 200; degradation shows up in mode, fromCache,
// rateLimited and error.
func (a *API) Global(w http.ResponseWriter, r *http.Request) {
	res := a.global.Get(r.Context())
	writeJSON(w, http.StatusOK, models.GlobalResponse{
		GlobalSnapshot: res.Snapshot,
		Mode:           string(res.Mode),
		FromCache:      res.FromCache,
		RateLimited:    res.RateLimited,
	})
}
