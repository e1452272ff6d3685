package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/repository"
	"github.com/KlinikCare/attendance-service/internal/util/logger"

	"github.com/google/uuid"
)

// DeviceSessionManager enforces the single-active-device policy: per user,
// at most one device is simultaneously active and primary. Mutations for the
// same user are serialized through a keyed mutex on top of the repository's
// transactional updates, so the invariant is never observably violated
// between two committed states.
type DeviceSessionManager struct {
	repo  repository.DeviceRepository
	locks *keyedMutex
	now   func() time.Time
}

func NewDeviceSessionManager(repo repository.DeviceRepository) *DeviceSessionManager {
	return &DeviceSessionManager{
		repo:  repo,
		locks: newKeyedMutex(),
		now:   time.Now,
	}
}

// Verify stamps verified_at if unset. Idempotent: a second call leaves the
// original timestamp in place.
func (m *DeviceSessionManager) Verify(ctx context.Context, deviceID uuid.UUID) (*models.UserDevice, error) {
	dev, err := m.repo.GetByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if dev.VerifiedAt == nil {
		if err := m.repo.SetVerified(ctx, deviceID, m.now()); err != nil {
			return nil, err
		}
		dev, err = m.repo.GetByID(ctx, deviceID)
		if err != nil {
			return nil, err
		}
	}
	return dev, nil
}

// SetPrimary promotes the device to the user's primary within one atomic
// unit. Last writer wins under concurrent calls for the same user.
func (m *DeviceSessionManager) SetPrimary(ctx context.Context, deviceID uuid.UUID) error {
	dev, err := m.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	unlock := m.locks.Lock(dev.UserID)
	defer unlock()

	return m.repo.PromotePrimary(ctx, deviceID)
}

// Revoke permanently deactivates the device. Irreversible without a new
// device registration.
func (m *DeviceSessionManager) Revoke(ctx context.Context, deviceID uuid.UUID) error {
	dev, err := m.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	unlock := m.locks.Lock(dev.UserID)
	defer unlock()

	return m.repo.Revoke(ctx, deviceID)
}

// ForceSingleDevice suspends every other device of the owner and promotes
// the given one to the sole active primary, as one logical transaction.
// Policy enforcement jobs call this when they find violations.
func (m *DeviceSessionManager) ForceSingleDevice(ctx context.Context, deviceID uuid.UUID) error {
	dev, err := m.repo.GetByID(ctx, deviceID)
	if err != nil {
		return err
	}
	unlock := m.locks.Lock(dev.UserID)
	defer unlock()

	if err := m.repo.ForceSingle(ctx, deviceID); err != nil {
		return err
	}
	logger.Info("forced single device %s for user %s", deviceID, dev.UserID)
	return nil
}

func (m *DeviceSessionManager) CountActiveDevices(ctx context.Context, userID uuid.UUID) (int, error) {
	return m.repo.CountActive(ctx, userID)
}

func (m *DeviceSessionManager) HasMultipleActiveDevices(ctx context.Context, userID uuid.UUID) (bool, error) {
	n, err := m.repo.CountActive(ctx, userID)
	if err != nil {
		return false, err
	}
	return n > 1, nil
}

// ListDevices returns all devices registered to the user.
func (m *DeviceSessionManager) ListDevices(ctx context.Context, userID uuid.UUID) ([]models.UserDevice, error) {
	return m.repo.ListByUser(ctx, userID)
}

// PrimaryDevice returns the user's primary device. When a bug or race left
// multiple primaries behind, the most recently logged-in active one wins as
// a deterministic tiebreak and the anomaly is surfaced for reconciliation;
// the next SetPrimary or ForceSingleDevice call restores the invariant.
func (m *DeviceSessionManager) PrimaryDevice(ctx context.Context, userID uuid.UUID) (*models.UserDevice, error) {
	devices, err := m.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var primaries []models.UserDevice
	for _, d := range devices {
		if d.Active && d.Primary {
			primaries = append(primaries, d)
		}
	}
	switch len(primaries) {
	case 0:
		return nil, repository.ErrNotFound
	case 1:
		return &primaries[0], nil
	}

	logger.Warn("user %s has %d primary devices, picking most recent login", userID, len(primaries))
	best := primaries[0]
	for _, d := range primaries[1:] {
		if laterLogin(d.LastLoginAt, best.LastLoginAt) {
			best = d
		}
	}
	return &best, nil
}

func laterLogin(a, b *time.Time) bool {
	if a == nil {
		return false
	}
	if b == nil {
		return true
	}
	return a.After(*b)
}

// RegisterDevice creates a new active, unverified device row for the user.
// Re-registering a known fingerprint returns the existing row and stamps its
// last login instead of creating a duplicate; revoked fingerprints stay dead.
func (m *DeviceSessionManager) RegisterDevice(ctx context.Context, userID uuid.UUID, fingerprint, platform, label string) (*models.UserDevice, error) {
	if fingerprint == "" {
		return nil, fmt.Errorf("device fingerprint is required")
	}

	if existing, err := m.repo.GetByFingerprint(ctx, userID, fingerprint); err == nil {
		if existing.Status == models.DeviceRevoked {
			return nil, fmt.Errorf("device fingerprint %s was revoked", fingerprint)
		}
		if err := m.repo.TouchLastLogin(ctx, existing.ID, m.now()); err != nil {
			logger.Warn("touch last login for device %s: %v", existing.ID, err)
		}
		return existing, nil
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	dev := &models.UserDevice{
		ID:          uuid.New(),
		UserID:      userID,
		Fingerprint: fingerprint,
		Platform:    platform,
		Label:       label,
		Active:      true,
		Primary:     false,
		Status:      models.DeviceActive,
	}
	if err := m.repo.Register(ctx, dev); err != nil {
		return nil, err
	}
	return dev, nil
}
