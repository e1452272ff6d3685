package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/KlinikCare/attendance-service/internal/models"

	"github.com/google/uuid"
)

type postgresTravelRepository struct {
	db *sql.DB
}

func NewPostgresTravelRepository(db *sql.DB) TravelRepository {
	return &postgresTravelRepository{db: db}
}

func (r *postgresTravelRepository) Get(ctx context.Context, userID uuid.UUID) (*models.TravelSample, error) {
	const q = `
SELECT user_id, latitude, longitude, recorded_at, version
FROM travel_samples WHERE user_id = $1
`
	var s models.TravelSample
	err := r.db.QueryRowContext(ctx, q, userID).Scan(
		&s.UserID, &s.Latitude, &s.Longitude, &s.RecordedAt, &s.Version,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

// Upsert replaces the current sample only if nobody advanced the version
// since the caller read it. expectedVersion 0 means the caller saw no prior
// sample, so the insert must not conflict with an existing row.
func (r *postgresTravelRepository) Upsert(ctx context.Context, sample *models.TravelSample, expectedVersion int64) error {
	if expectedVersion == 0 {
		const ins = `
INSERT INTO travel_samples (user_id, latitude, longitude, recorded_at, version)
VALUES ($1, $2, $3, $4, 1)
ON CONFLICT (user_id) DO NOTHING
`
		res, err := r.db.ExecContext(ctx, ins, sample.UserID, sample.Latitude, sample.Longitude, sample.RecordedAt)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return ErrStaleSample
		}
		sample.Version = 1
		return nil
	}

	const upd = `
UPDATE travel_samples
SET latitude = $2, longitude = $3, recorded_at = $4, version = version + 1
WHERE user_id = $1 AND version = $5
`
	res, err := r.db.ExecContext(ctx, upd, sample.UserID, sample.Latitude, sample.Longitude, sample.RecordedAt, expectedVersion)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleSample
	}
	sample.Version = expectedVersion + 1
	return nil
}
