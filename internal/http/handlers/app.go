package handlers

import (
	"encoding/json"
	"net/http"

	"server/internal/domain"
	"server/internal/generation"
	"server/internal/infra"
	"server/internal/middleware"
	"server/internal/storage"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	SQL          infra.SQLExecutor
	Designs      domain.DesignRepository
	Orchestrator *generation.Orchestrator
	Store        *storage.FileStore
	Config       *infra.Config
	Logger       infra.Logger
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, message string) {
	a.json(w, code, errorBody{Error: kind, Message: message})
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
