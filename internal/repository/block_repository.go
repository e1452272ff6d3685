package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"

	"github.com/google/uuid"
)

type postgresBlockRepository struct {
	db *sql.DB
}

func NewPostgresBlockRepository(db *sql.DB) BlockRepository {
	return &postgresBlockRepository{db: db}
}

func (r *postgresBlockRepository) Insert(ctx context.Context, block *models.UserBlock) error {
	const q = `
INSERT INTO user_blocks (id, user_id, reason, blocked_at, expires_at, require_admin_unblock)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := r.db.ExecContext(ctx, q,
		block.ID, block.UserID, block.Reason, block.BlockedAt, block.ExpiresAt, block.RequireAdminUnblock,
	)
	return err
}

// ActiveForUser returns the newest unlifted block still in effect. Timed
// blocks expire by the expires_at predicate; admin-unblock blocks only fall
// out of this query once lifted_at is set.
func (r *postgresBlockRepository) ActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.UserBlock, error) {
	const q = `
SELECT id, user_id, reason, blocked_at, expires_at, require_admin_unblock, lifted_at, lifted_by
FROM user_blocks
WHERE user_id = $1
  AND lifted_at IS NULL
  AND (require_admin_unblock OR expires_at IS NULL OR expires_at > $2)
ORDER BY blocked_at DESC
LIMIT 1
`
	var b models.UserBlock
	err := r.db.QueryRowContext(ctx, q, userID, now).Scan(
		&b.ID, &b.UserID, &b.Reason, &b.BlockedAt, &b.ExpiresAt,
		&b.RequireAdminUnblock, &b.LiftedAt, &b.LiftedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *postgresBlockRepository) Lift(ctx context.Context, userID uuid.UUID, liftedBy uuid.UUID, at time.Time) error {
	const q = `
UPDATE user_blocks
SET lifted_at = $3, lifted_by = $2
WHERE user_id = $1 AND lifted_at IS NULL
`
	_, err := r.db.ExecContext(ctx, q, userID, liftedBy, at)
	return err
}
