package domain

import (
	"context"
	"time"
)

// DesignStatus enumerates design lifecycle states.
type DesignStatus string

const (
	DesignStatusPending   DesignStatus = "pending"
	DesignStatusSucceeded DesignStatus = "succeeded"
	DesignStatusFailed    DesignStatus = "failed"
)

// Design records one redesign request and its outcome.
type Design struct {
	ID               string
	UserID           string
	RoomType         string
	FurnitureStyle   string
	WallColor        string
	FlooringMaterial string
	Budget           string
	Status           DesignStatus
	EngineUsed       string
	InferenceSeconds float64
	ErrorMessage     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DesignAsset is one generated render belonging to a design.
type DesignAsset struct {
	ID         string
	DesignID   string
	StorageKey string
	MIME       string
	Width      int
	Height     int
	Bytes      int64
	CreatedAt  time.Time
}

// DesignRepository defines persistence for designs and their renders.
type DesignRepository interface {
	Create(ctx context.Context, d *Design) error
	UpdateResult(ctx context.Context, id string, status DesignStatus, engineUsed string, inferenceSeconds float64, errMsg string) error
	GetByID(ctx context.Context, id, userID string) (*Design, error)
	SaveAssets(ctx context.Context, designID string, assets []DesignAsset) error
	ListAssets(ctx context.Context, designID string) ([]DesignAsset, error)
}
