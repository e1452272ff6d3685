package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/KlinikCare/attendance-service/internal/models"

	"github.com/google/uuid"
)

// Work locations are owned by the location-management service; this side
// only reads them. The shift set is stored as a JSONB document alongside the
// scalar columns.
type postgresLocationRepository struct {
	db *sql.DB
}

func NewPostgresLocationRepository(db *sql.DB) LocationRepository {
	return &postgresLocationRepository{db: db}
}

func (r *postgresLocationRepository) GetByID(ctx context.Context, locationID uuid.UUID) (*models.WorkLocation, error) {
	const q = `
SELECT id, name, latitude, longitude, radius_meters, gps_accuracy_required, mode, shifts,
       late_checkin_minutes, early_checkout_minutes, pre_shift_checkin_minutes, post_shift_checkout_minutes
FROM work_locations WHERE id = $1
`
	var (
		loc    models.WorkLocation
		shifts []byte
	)
	err := r.db.QueryRowContext(ctx, q, locationID).Scan(
		&loc.ID, &loc.Name, &loc.Latitude, &loc.Longitude,
		&loc.RadiusMeters, &loc.GPSAccuracyRequired, &loc.Mode, &shifts,
		&loc.LateCheckInMinutes, &loc.EarlyCheckoutMinutes,
		&loc.PreShiftCheckInMinutes, &loc.PostShiftCheckoutMinutes,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if len(shifts) > 0 {
		if err := json.Unmarshal(shifts, &loc.Shifts); err != nil {
			return nil, fmt.Errorf("decode shifts for location %s: %w", locationID, err)
		}
	}
	return &loc, nil
}
