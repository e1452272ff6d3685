package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"
)

// The detection config is stored as a single JSONB row keyed by a fixed id;
// the whole document is replaced on save, mirroring how admins edit it.
type postgresConfigRepository struct {
	db *sql.DB
}

func NewPostgresConfigRepository(db *sql.DB) ConfigRepository {
	return &postgresConfigRepository{db: db}
}

func (r *postgresConfigRepository) GetActive(ctx context.Context) (*models.DetectionConfig, error) {
	const q = `
SELECT payload, updated_at
FROM detection_configs WHERE id = 1
`
	var (
		payload   []byte
		updatedAt time.Time
	)
	if err := r.db.QueryRowContext(ctx, q).Scan(&payload, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var cfg models.DetectionConfig
	if err := json.Unmarshal(payload, &cfg); err != nil {
		return nil, fmt.Errorf("decode detection config: %w", err)
	}
	cfg.UpdatedAt = updatedAt
	return &cfg, nil
}

func (r *postgresConfigRepository) Save(ctx context.Context, cfg *models.DetectionConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	const q = `
INSERT INTO detection_configs (id, payload, updated_at)
VALUES (1, $1, now())
ON CONFLICT (id) DO UPDATE
SET payload = EXCLUDED.payload,
    updated_at = now()
`
	_, err = r.db.ExecContext(ctx, q, payload)
	return err
}
