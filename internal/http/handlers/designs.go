package handlers

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"net/http"
	"strings"
	"time"

	"server/internal/domain"
	"server/internal/engine"
	"server/internal/generation"
	"server/internal/middleware"
	"server/internal/ratelimit"
	"server/internal/sqlinline"
	"server/internal/storage"
	"server/pkg/zip"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type designCreateRequest struct {
	RoomType         string            `json:"room_type"`
	FurnitureStyle   string            `json:"furniture_style"`
	WallColor        string            `json:"wall_color"`
	FlooringMaterial string            `json:"flooring_material"`
	Budget           string            `json:"budget"`
	PrimaryImage     string            `json:"primary_image"`
	RoomImages       map[string]string `json:"room_images"`
}

type designResponse struct {
	ID               string          `json:"id"`
	Status           string          `json:"status"`
	EngineUsed       string          `json:"engine_used,omitempty"`
	InferenceSeconds float64         `json:"inference_seconds,omitempty"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	Images           []string        `json:"images,omitempty"`
	Usage            ratelimit.Usage `json:"usage"`
}

// DesignsCreate runs one redesign synchronously: quota, prompts,
// preprocessing, engine chain, then persistence of the design row and its
// renders.
func (a *App) DesignsCreate(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req designCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if strings.TrimSpace(req.PrimaryImage) == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "primary_image is required")
		return
	}
	primary, err := base64.StdEncoding.DecodeString(req.PrimaryImage)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "primary_image is not valid base64")
		return
	}
	roomImages := make(map[engine.Direction][]byte, len(req.RoomImages))
	for key, payload := range req.RoomImages {
		dir, ok := parseDirection(key)
		if !ok {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("unknown direction %q", key))
			return
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", fmt.Sprintf("room image %q is not valid base64", key))
			return
		}
		roomImages[dir] = data
	}

	design := &domain.Design{
		ID:               uuid.NewString(),
		UserID:           userID,
		RoomType:         req.RoomType,
		FurnitureStyle:   req.FurnitureStyle,
		WallColor:        req.WallColor,
		FlooringMaterial: req.FlooringMaterial,
		Budget:           req.Budget,
		Status:           domain.DesignStatusPending,
	}
	if err := a.Designs.Create(r.Context(), design); err != nil {
		a.Logger.Error().Err(err).Msg("designs: create failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to record design")
		return
	}

	started := time.Now()
	result := a.Orchestrator.Generate(r.Context(), generation.Request{
		UserID:       userID,
		RequestID:    design.ID,
		PrimaryImage: primary,
		RoomImages:   roomImages,
		Style: engine.StyleParameters{
			RoomType:         req.RoomType,
			FurnitureStyle:   req.FurnitureStyle,
			WallColor:        req.WallColor,
			FlooringMaterial: req.FlooringMaterial,
			Budget:           req.Budget,
		},
	})
	latencyMS := int(time.Since(started).Milliseconds())

	if !result.Success && ratelimit.IsDenialMessage(result.ErrorMessage) {
		_ = a.Designs.UpdateResult(r.Context(), design.ID, domain.DesignStatusFailed, "", 0, result.ErrorMessage)
		a.error(w, http.StatusTooManyRequests, "quota_exceeded", localizedDenial(r, result.ErrorMessage))
		return
	}

	if !result.Success {
		_ = a.Designs.UpdateResult(r.Context(), design.ID, domain.DesignStatusFailed, result.EngineUsed, result.InferenceSeconds, result.ErrorMessage)
		a.recordUsage(r, design.ID, result.EngineUsed, false, latencyMS)
		a.error(w, http.StatusBadGateway, "engine_failure", result.ErrorMessage)
		return
	}

	urls, saveErr := a.persistRenders(r, design.ID, result.Images)
	if saveErr != nil {
		a.Logger.Error().Err(saveErr).Str("design_id", design.ID).Msg("designs: persisting renders failed")
		_ = a.Designs.UpdateResult(r.Context(), design.ID, domain.DesignStatusFailed, result.EngineUsed, result.InferenceSeconds, "failed to store renders")
		a.recordUsage(r, design.ID, result.EngineUsed, false, latencyMS)
		a.error(w, http.StatusInternalServerError, "internal", "failed to store renders")
		return
	}
	if err := a.Designs.UpdateResult(r.Context(), design.ID, domain.DesignStatusSucceeded, result.EngineUsed, result.InferenceSeconds, ""); err != nil {
		a.Logger.Error().Err(err).Str("design_id", design.ID).Msg("designs: update failed")
	}
	a.recordUsage(r, design.ID, result.EngineUsed, true, latencyMS)

	a.json(w, http.StatusOK, designResponse{
		ID:               design.ID,
		Status:           string(domain.DesignStatusSucceeded),
		EngineUsed:       result.EngineUsed,
		InferenceSeconds: result.InferenceSeconds,
		Images:           urls,
		Usage:            a.Orchestrator.Usage(userID),
	})
}

// DesignGet returns one design with its stored renders.
func (a *App) DesignGet(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	designID := chi.URLParam(r, "id")
	if designID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	design, err := a.Designs.GetByID(r.Context(), designID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "design not found")
			return
		}
		a.Logger.Error().Err(err).Str("design_id", designID).Msg("designs: fetch failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load design")
		return
	}
	assets, err := a.Designs.ListAssets(r.Context(), designID)
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to load renders")
		return
	}
	urls := make([]string, 0, len(assets))
	for _, asset := range assets {
		urls = append(urls, a.assetURL(asset.StorageKey))
	}
	a.json(w, http.StatusOK, map[string]any{
		"id":                design.ID,
		"status":            string(design.Status),
		"room_type":         design.RoomType,
		"furniture_style":   design.FurnitureStyle,
		"wall_color":        design.WallColor,
		"flooring_material": design.FlooringMaterial,
		"budget":            design.Budget,
		"engine_used":       design.EngineUsed,
		"inference_seconds": design.InferenceSeconds,
		"error_message":     design.ErrorMessage,
		"images":            urls,
		"created_at":        design.CreatedAt,
		"updated_at":        design.UpdatedAt,
	})
}

// DesignDownload streams all renders of a design as a zip archive.
func (a *App) DesignDownload(w http.ResponseWriter, r *http.Request) {
	userID := a.currentUserID(r)
	if userID == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	designID := chi.URLParam(r, "id")
	if designID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	if _, err := a.Designs.GetByID(r.Context(), designID, userID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "design not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load design")
		return
	}
	assets, err := a.Designs.ListAssets(r.Context(), designID)
	if err != nil || len(assets) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no renders available")
		return
	}
	items := make([]zip.Asset, 0, len(assets))
	for i, asset := range assets {
		data, err := a.Store.Read(r.Context(), asset.StorageKey)
		if err != nil {
			a.Logger.Warn().Err(err).Str("storage_key", asset.StorageKey).Msg("designs: render missing from storage")
			continue
		}
		items = append(items, zip.Asset{
			Filename: fmt.Sprintf("%s-%02d.png", designID, i+1),
			MIME:     asset.MIME,
			Data:     data,
		})
	}
	if len(items) == 0 {
		a.error(w, http.StatusNotFound, "not_found", "no renders available")
		return
	}
	archive := zip.ArchiveAssets(items)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=design-%s.zip", designID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}

// persistRenders writes each base64 render to storage and records the asset
// rows. Returns the public URLs in render order.
func (a *App) persistRenders(r *http.Request, designID string, images []string) ([]string, error) {
	assets := make([]domain.DesignAsset, 0, len(images))
	urls := make([]string, 0, len(images))
	for i, payload := range images {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decode render %d: %w", i, err)
		}
		key, err := a.Store.Write(r.Context(), storage.DesignKey(designID, i), data)
		if err != nil {
			return nil, fmt.Errorf("store render %d: %w", i, err)
		}
		width, height := 0, 0
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
			width, height = cfg.Width, cfg.Height
		}
		assets = append(assets, domain.DesignAsset{
			ID:         uuid.NewString(),
			DesignID:   designID,
			StorageKey: key,
			MIME:       "image/png",
			Width:      width,
			Height:     height,
			Bytes:      int64(len(data)),
		})
		urls = append(urls, a.assetURL(key))
	}
	if err := a.Designs.SaveAssets(r.Context(), designID, assets); err != nil {
		return nil, fmt.Errorf("save assets: %w", err)
	}
	return urls, nil
}

func (a *App) assetURL(storageKey string) string {
	base := ""
	if a.Config != nil {
		base = strings.TrimRight(a.Config.StorageBaseURL, "/")
	}
	if base == "" {
		return storageKey
	}
	return base + "/" + storageKey
}

func (a *App) recordUsage(r *http.Request, designID, engineUsed string, success bool, latencyMS int) {
	if a.SQL == nil {
		return
	}
	_, err := a.SQL.Exec(r.Context(), sqlinline.QInsertUsageEvent,
		a.currentUserID(r), designID, "design_generate", engineUsed, success, latencyMS)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("designs: usage event insert failed")
	}
}

// localizedDenial translates quota denial messages for Indonesian users;
// every other locale receives the limiter's English text.
func localizedDenial(r *http.Request, msg string) string {
	if middleware.LocaleFromContext(r.Context()) == "id" {
		return "batas penggunaan tercapai, coba lagi nanti"
	}
	return msg
}

func parseDirection(s string) (engine.Direction, bool) {
	switch engine.Direction(strings.ToLower(strings.TrimSpace(s))) {
	case engine.DirectionNorth:
		return engine.DirectionNorth, true
	case engine.DirectionSouth:
		return engine.DirectionSouth, true
	case engine.DirectionEast:
		return engine.DirectionEast, true
	case engine.DirectionWest:
		return engine.DirectionWest, true
	default:
		return "", false
	}
}
