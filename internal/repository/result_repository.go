package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type postgresResultRepository struct {
	db *sql.DB
}

func NewPostgresResultRepository(db *sql.DB) ResultRepository {
	return &postgresResultRepository{db: db}
}

func (r *postgresResultRepository) Insert(ctx context.Context, res *models.DetectionResult) error {
	const q = `
INSERT INTO detection_results
  (id, attempt_id, user_id, score, level, action, admissible, in_geofence, within_shift_window, reasons, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`
	_, err := r.db.ExecContext(ctx, q,
		res.ID, res.AttemptID, res.UserID, res.Score, string(res.Level), string(res.Action),
		res.Admissible, res.InGeofence, res.WithinShiftWindow, pq.Array(res.Reasons), res.CreatedAt,
	)
	return err
}

func (r *postgresResultRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.DetectionResult, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
SELECT id, attempt_id, user_id, score, level, action, admissible, in_geofence, within_shift_window, reasons, created_at
FROM detection_results
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := r.db.QueryContext(ctx, q, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DetectionResult
	for rows.Next() {
		var res models.DetectionResult
		if err := rows.Scan(
			&res.ID, &res.AttemptID, &res.UserID, &res.Score, &res.Level, &res.Action,
			&res.Admissible, &res.InGeofence, &res.WithinShiftWindow, pq.Array(&res.Reasons), &res.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *postgresResultRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM detection_results WHERE created_at < $1`
	res, err := r.db.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
