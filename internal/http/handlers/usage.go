package handlers

import (
	"net/http"

	"server/internal/ratelimit"
	"server/internal/sqlinline"
)

type usageResponse struct {
	ratelimit.Usage
	RecordedEvents24h *int `json:"recorded_events_24h,omitempty"`
}

// UsageGet reports the caller's quota consumption for the rolling window.
// When the database is wired in, the persisted event count rides along as a
// cross-check against the in-memory window.
func (a *App) UsageGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	resp := usageResponse{Usage: a.Orchestrator.Usage(userID)}
	if a.SQL != nil {
		var recorded int
		row := a.SQL.QueryRow(r.Context(), sqlinline.QCountUsageEvents24h, userID)
		if err := row.Scan(&recorded); err == nil {
			resp.RecordedEvents24h = &recorded
		}
	}
	a.json(w, http.StatusOK, resp)
}
