package handlers

import (
	"net/http"
)

func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Engines probes every configured engine and reports health plus model
// metadata, in priority order.
func (a *App) Engines(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"engines": a.Orchestrator.EngineReports(r.Context()),
	})
}
