package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"

	"github.com/google/uuid"
)

type postgresDeviceRepository struct {
	db *sql.DB
}

func NewPostgresDeviceRepository(db *sql.DB) DeviceRepository {
	return &postgresDeviceRepository{db: db}
}

const deviceColumns = `id, user_id, fingerprint, platform, label, active, is_primary, status, verified_at, last_login_at, created_at, updated_at`

func scanDevice(row interface{ Scan(...any) error }) (*models.UserDevice, error) {
	var d models.UserDevice
	err := row.Scan(
		&d.ID, &d.UserID, &d.Fingerprint, &d.Platform, &d.Label,
		&d.Active, &d.Primary, &d.Status, &d.VerifiedAt, &d.LastLoginAt,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (r *postgresDeviceRepository) GetByID(ctx context.Context, deviceID uuid.UUID) (*models.UserDevice, error) {
	const q = `SELECT ` + deviceColumns + ` FROM user_devices WHERE id = $1`
	return scanDevice(r.db.QueryRowContext(ctx, q, deviceID))
}

func (r *postgresDeviceRepository) GetByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*models.UserDevice, error) {
	const q = `SELECT ` + deviceColumns + ` FROM user_devices WHERE user_id = $1 AND fingerprint = $2`
	return scanDevice(r.db.QueryRowContext(ctx, q, userID, fingerprint))
}

func (r *postgresDeviceRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserDevice, error) {
	const q = `SELECT ` + deviceColumns + ` FROM user_devices WHERE user_id = $1 ORDER BY created_at`
	rows, err := r.db.QueryContext(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.UserDevice
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (r *postgresDeviceRepository) Register(ctx context.Context, dev *models.UserDevice) error {
	const q = `
INSERT INTO user_devices (id, user_id, fingerprint, platform, label, active, is_primary, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
`
	_, err := r.db.ExecContext(ctx, q,
		dev.ID, dev.UserID, dev.Fingerprint, dev.Platform, dev.Label,
		dev.Active, dev.Primary, string(dev.Status),
	)
	return err
}

// SetVerified only touches rows whose verified_at is still NULL, which makes
// repeated verify calls a no-op rather than a timestamp rewrite.
func (r *postgresDeviceRepository) SetVerified(ctx context.Context, deviceID uuid.UUID, at time.Time) error {
	const q = `
UPDATE user_devices
SET verified_at = $2, updated_at = now()
WHERE id = $1 AND verified_at IS NULL
`
	_, err := r.db.ExecContext(ctx, q, deviceID, at)
	return err
}

func (r *postgresDeviceRepository) TouchLastLogin(ctx context.Context, deviceID uuid.UUID, at time.Time) error {
	const q = `
UPDATE user_devices
SET last_login_at = GREATEST(COALESCE(last_login_at, 'epoch'::timestamptz), $2),
    updated_at = now()
WHERE id = $1
`
	_, err := r.db.ExecContext(ctx, q, deviceID, at)
	return err
}

func (r *postgresDeviceRepository) PromotePrimary(ctx context.Context, deviceID uuid.UUID) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		const clear = `
UPDATE user_devices
SET is_primary = false, updated_at = now()
WHERE user_id = (SELECT user_id FROM user_devices WHERE id = $1)
  AND id <> $1 AND is_primary
`
		if _, err := tx.ExecContext(ctx, clear, deviceID); err != nil {
			return err
		}
		const set = `
UPDATE user_devices
SET is_primary = true, updated_at = now()
WHERE id = $1
`
		res, err := tx.ExecContext(ctx, set, deviceID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (r *postgresDeviceRepository) Revoke(ctx context.Context, deviceID uuid.UUID) error {
	const q = `
UPDATE user_devices
SET status = 'revoked', active = false, is_primary = false, updated_at = now()
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, deviceID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *postgresDeviceRepository) ForceSingle(ctx context.Context, deviceID uuid.UUID) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		const suspend = `
UPDATE user_devices
SET status = 'suspended', active = false, is_primary = false, updated_at = now()
WHERE user_id = (SELECT user_id FROM user_devices WHERE id = $1)
  AND id <> $1 AND status <> 'revoked'
`
		if _, err := tx.ExecContext(ctx, suspend, deviceID); err != nil {
			return err
		}
		const promote = `
UPDATE user_devices
SET status = 'active', active = true, is_primary = true, updated_at = now()
WHERE id = $1
`
		res, err := tx.ExecContext(ctx, promote, deviceID)
		if err != nil {
			return err
		}
		return requireRow(res)
	})
}

func (r *postgresDeviceRepository) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	const q = `SELECT COUNT(*) FROM user_devices WHERE user_id = $1 AND active`
	var n int
	if err := r.db.QueryRowContext(ctx, q, userID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *postgresDeviceRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
