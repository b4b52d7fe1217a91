package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// DesignRepositoryPG implements domain.DesignRepository using PostgreSQL.
type DesignRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewDesignRepository creates a design repository backed by PostgreSQL.
func NewDesignRepository(pool *pgxpool.Pool) *DesignRepositoryPG {
	return &DesignRepositoryPG{pool: pool}
}

// Create inserts a new design record in pending state.
func (r *DesignRepositoryPG) Create(ctx context.Context, d *domain.Design) error {
	query := `
INSERT INTO designs (id, user_id, room_type, furniture_style, wall_color, flooring_material, budget, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
`
	_, err := r.pool.Exec(ctx, query,
		d.ID,
		d.UserID,
		d.RoomType,
		d.FurnitureStyle,
		d.WallColor,
		d.FlooringMaterial,
		d.Budget,
		d.Status,
	)
	return err
}

// UpdateResult records the generation outcome against the design.
func (r *DesignRepositoryPG) UpdateResult(ctx context.Context, id string, status domain.DesignStatus, engineUsed string, inferenceSeconds float64, errMsg string) error {
	query := `
UPDATE designs
SET status = $2,
    engine_used = $3,
    inference_seconds = $4,
    error_message = NULLIF($5, ''),
    updated_at = NOW()
WHERE id = $1;
`
	_, err := r.pool.Exec(ctx, query, id, status, engineUsed, inferenceSeconds, errMsg)
	return err
}

// GetByID fetches a design scoped to its owner.
func (r *DesignRepositoryPG) GetByID(ctx context.Context, id, userID string) (*domain.Design, error) {
	query := `
SELECT id, user_id, room_type, furniture_style, wall_color, flooring_material, budget,
       status, COALESCE(engine_used, ''), COALESCE(inference_seconds, 0),
       COALESCE(error_message, ''), created_at, updated_at
FROM designs
WHERE id = $1 AND user_id = $2;
`
	row := r.pool.QueryRow(ctx, query, id, userID)
	var d domain.Design
	if err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.RoomType,
		&d.FurnitureStyle,
		&d.WallColor,
		&d.FlooringMaterial,
		&d.Budget,
		&d.Status,
		&d.EngineUsed,
		&d.InferenceSeconds,
		&d.ErrorMessage,
		&d.CreatedAt,
		&d.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// SaveAssets persists the generated renders for a design.
func (r *DesignRepositoryPG) SaveAssets(ctx context.Context, designID string, assets []domain.DesignAsset) error {
	if len(assets) == 0 {
		return nil
	}
	query := `
INSERT INTO design_assets (id, design_id, storage_key, mime, width, height, bytes)
VALUES ($1, $2, $3, $4, $5, $6, $7);
`
	for _, asset := range assets {
		if _, err := r.pool.Exec(ctx, query, asset.ID, designID, asset.StorageKey, asset.MIME, asset.Width, asset.Height, asset.Bytes); err != nil {
			return err
		}
	}
	return nil
}

// ListAssets returns a design's renders in creation order.
func (r *DesignRepositoryPG) ListAssets(ctx context.Context, designID string) ([]domain.DesignAsset, error) {
	rows, err := r.pool.Query(ctx, `
SELECT id, design_id, storage_key, mime, width, height, bytes, created_at
FROM design_assets
WHERE design_id = $1
ORDER BY created_at ASC;
`, designID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []domain.DesignAsset
	for rows.Next() {
		var a domain.DesignAsset
		if err := rows.Scan(&a.ID, &a.DesignID, &a.StorageKey, &a.MIME, &a.Width, &a.Height, &a.Bytes, &a.CreatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

var _ domain.DesignRepository = (*DesignRepositoryPG)(nil)
