package repository

import (
	"context"
	"errors"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrStaleSample means a concurrent check-in already replaced the travel
	// sample the caller read; the caller must re-read and retry.
	ErrStaleSample = errors.New("travel sample version conflict")
)

// ConfigRepository persists the singleton detection configuration.
type ConfigRepository interface {
	GetActive(ctx context.Context) (*models.DetectionConfig, error)
	Save(ctx context.Context, cfg *models.DetectionConfig) error
}

// ResultRepository is the append-only detection result store.
type ResultRepository interface {
	Insert(ctx context.Context, res *models.DetectionResult) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.DetectionResult, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeviceRepository persists user devices. The multi-row mutations run in a
// single transaction so the one-primary invariant holds between any two
// committed states.
type DeviceRepository interface {
	GetByID(ctx context.Context, deviceID uuid.UUID) (*models.UserDevice, error)
	GetByFingerprint(ctx context.Context, userID uuid.UUID, fingerprint string) (*models.UserDevice, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserDevice, error)
	Register(ctx context.Context, dev *models.UserDevice) error
	SetVerified(ctx context.Context, deviceID uuid.UUID, at time.Time) error
	TouchLastLogin(ctx context.Context, deviceID uuid.UUID, at time.Time) error

	// PromotePrimary clears primary on every other device of the owner and
	// sets it on the target, in one transaction.
	PromotePrimary(ctx context.Context, deviceID uuid.UUID) error

	// Revoke deactivates a single device permanently.
	Revoke(ctx context.Context, deviceID uuid.UUID) error

	// ForceSingle suspends every other device of the owner and promotes the
	// target to the sole active primary, in one transaction.
	ForceSingle(ctx context.Context, deviceID uuid.UUID) error

	CountActive(ctx context.Context, userID uuid.UUID) (int, error)
}

// LocationRepository reads work locations owned by location management.
type LocationRepository interface {
	GetByID(ctx context.Context, locationID uuid.UUID) (*models.WorkLocation, error)
}

// TravelRepository holds the one current travel sample per user. Upsert is
// conditional on the version the caller read and returns ErrStaleSample when
// it lost the race.
type TravelRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*models.TravelSample, error)
	Upsert(ctx context.Context, sample *models.TravelSample, expectedVersion int64) error
}

// BlockRepository persists enforcement suspensions.
type BlockRepository interface {
	Insert(ctx context.Context, block *models.UserBlock) error
	ActiveForUser(ctx context.Context, userID uuid.UUID, now time.Time) (*models.UserBlock, error)
	Lift(ctx context.Context, userID uuid.UUID, liftedBy uuid.UUID, at time.Time) error
}
