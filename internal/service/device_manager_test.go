package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeDeviceRepo applies the same multi-row semantics the postgres
// implementation commits transactionally.
type fakeDeviceRepo struct {
	mu      sync.Mutex
	devices map[uuid.UUID]*models.UserDevice
}

func newFakeDeviceRepo(devices ...*models.UserDevice) *fakeDeviceRepo {
	f := &fakeDeviceRepo{devices: map[uuid.UUID]*models.UserDevice{}}
	for _, d := range devices {
		f.devices[d.ID] = d
	}
	return f
}

func (f *fakeDeviceRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.UserDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDeviceRepo) GetByFingerprint(ctx context.Context, userID uuid.UUID, fp string) (*models.UserDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.devices {
		if d.UserID == userID && d.Fingerprint == fp {
			cp := *d
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeDeviceRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.UserDevice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.UserDevice
	for _, d := range f.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeDeviceRepo) Register(ctx context.Context, dev *models.UserDevice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *dev
	f.devices[dev.ID] = &cp
	return nil
}

func (f *fakeDeviceRepo) SetVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return repository.ErrNotFound
	}
	if d.VerifiedAt == nil {
		d.VerifiedAt = &at
	}
	return nil
}

func (f *fakeDeviceRepo) TouchLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.LastLoginAt = &at
	return nil
}

func (f *fakeDeviceRepo) PromotePrimary(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.devices[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, d := range f.devices {
		if d.UserID == target.UserID {
			d.Primary = false
		}
	}
	target.Primary = true
	return nil
}

func (f *fakeDeviceRepo) Revoke(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.devices[id]
	if !ok {
		return repository.ErrNotFound
	}
	d.Active = false
	d.Primary = false
	d.Status = models.DeviceRevoked
	return nil
}

func (f *fakeDeviceRepo) ForceSingle(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	target, ok := f.devices[id]
	if !ok {
		return repository.ErrNotFound
	}
	for _, d := range f.devices {
		if d.UserID == target.UserID && d.ID != id && d.Status != models.DeviceRevoked {
			d.Active = false
			d.Primary = false
			d.Status = models.DeviceSuspended
		}
	}
	target.Active = true
	target.Primary = true
	target.Status = models.DeviceActive
	return nil
}

func (f *fakeDeviceRepo) CountActive(ctx context.Context, userID uuid.UUID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, d := range f.devices {
		if d.UserID == userID && d.Active {
			n++
		}
	}
	return n, nil
}

func device(userID uuid.UUID, active, primary bool) *models.UserDevice {
	return &models.UserDevice{
		ID:          uuid.New(),
		UserID:      userID,
		Fingerprint: "fp-" + uuid.NewString()[:8],
		Platform:    "android",
		Active:      active,
		Primary:     primary,
		Status:      models.DeviceActive,
		CreatedAt:   time.Now(),
	}
}

func TestVerifyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	dev := device(userID, true, false)
	repo := newFakeDeviceRepo(dev)
	m := NewDeviceSessionManager(repo)

	first, err := m.Verify(ctx, dev.ID)
	require.NoError(t, err)
	require.NotNil(t, first.VerifiedAt)

	second, err := m.Verify(ctx, dev.ID)
	require.NoError(t, err)
	require.Equal(t, first.VerifiedAt, second.VerifiedAt, "second verify keeps the original timestamp")
}

func TestSetPrimaryDemotesOthers(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	old := device(userID, true, true)
	next := device(userID, true, false)
	repo := newFakeDeviceRepo(old, next)
	m := NewDeviceSessionManager(repo)

	require.NoError(t, m.SetPrimary(ctx, next.ID))

	devices, err := m.ListDevices(ctx, userID)
	require.NoError(t, err)
	primaries := 0
	for _, d := range devices {
		if d.Active && d.Primary {
			primaries++
			require.Equal(t, next.ID, d.ID)
		}
	}
	require.Equal(t, 1, primaries)
}

func TestForceSingleDeviceRestoresInvariant(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	// Three active devices, two claiming primary: a violated state.
	a := device(userID, true, true)
	b := device(userID, true, true)
	c := device(userID, true, false)
	repo := newFakeDeviceRepo(a, b, c)
	m := NewDeviceSessionManager(repo)

	require.NoError(t, m.ForceSingleDevice(ctx, c.ID))

	devices, err := m.ListDevices(ctx, userID)
	require.NoError(t, err)
	require.Len(t, devices, 3)
	for _, d := range devices {
		if d.ID == c.ID {
			require.True(t, d.Active)
			require.True(t, d.Primary)
			require.Equal(t, models.DeviceActive, d.Status)
		} else {
			require.False(t, d.Active)
			require.False(t, d.Primary)
			require.Equal(t, models.DeviceSuspended, d.Status)
		}
	}

	n, err := m.CountActiveDevices(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestRevokeDeactivatesPermanently(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	dev := device(userID, true, true)
	repo := newFakeDeviceRepo(dev)
	m := NewDeviceSessionManager(repo)

	require.NoError(t, m.Revoke(ctx, dev.ID))

	got, err := repo.GetByID(ctx, dev.ID)
	require.NoError(t, err)
	require.False(t, got.Active)
	require.False(t, got.Primary)
	require.Equal(t, models.DeviceRevoked, got.Status)
}

func TestHasMultipleActiveDevices(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	repo := newFakeDeviceRepo(device(userID, true, true), device(userID, true, false))
	m := NewDeviceSessionManager(repo)

	multi, err := m.HasMultipleActiveDevices(ctx, userID)
	require.NoError(t, err)
	require.True(t, multi)
}

func TestPrimaryDeviceNoneActive(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	repo := newFakeDeviceRepo(device(userID, true, false))
	m := NewDeviceSessionManager(repo)

	_, err := m.PrimaryDevice(ctx, userID)
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestPrimaryDeviceTiebreakByLastLogin(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	older := device(userID, true, true)
	newer := device(userID, true, true)
	earlier := time.Now().Add(-2 * time.Hour)
	later := time.Now().Add(-time.Minute)
	older.LastLoginAt = &earlier
	newer.LastLoginAt = &later
	repo := newFakeDeviceRepo(older, newer)
	m := NewDeviceSessionManager(repo)

	got, err := m.PrimaryDevice(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, newer.ID, got.ID, "most recent login wins the tiebreak")
}

func TestPrimaryDeviceTiebreakNilLogin(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	never := device(userID, true, true)
	loggedIn := device(userID, true, true)
	at := time.Now().Add(-time.Hour)
	loggedIn.LastLoginAt = &at
	repo := newFakeDeviceRepo(never, loggedIn)
	m := NewDeviceSessionManager(repo)

	got, err := m.PrimaryDevice(ctx, userID)
	require.NoError(t, err)
	require.Equal(t, loggedIn.ID, got.ID)
}

func TestRegisterDeviceRequiresFingerprint(t *testing.T) {
	ctx := context.Background()
	m := NewDeviceSessionManager(newFakeDeviceRepo())

	_, err := m.RegisterDevice(ctx, uuid.New(), "", "android", "work phone")
	require.Error(t, err)
}

func TestRegisterDeviceExistingFingerprintReturned(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	existing := device(userID, true, true)
	repo := newFakeDeviceRepo(existing)
	m := NewDeviceSessionManager(repo)

	dev, err := m.RegisterDevice(ctx, userID, existing.Fingerprint, "android", "again")
	require.NoError(t, err)
	require.Equal(t, existing.ID, dev.ID, "no duplicate row for a known fingerprint")

	got, err := repo.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt, "re-registration counts as a login")
}

func TestRegisterDeviceRevokedFingerprintRejected(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	revoked := device(userID, false, false)
	revoked.Status = models.DeviceRevoked
	repo := newFakeDeviceRepo(revoked)
	m := NewDeviceSessionManager(repo)

	_, err := m.RegisterDevice(ctx, userID, revoked.Fingerprint, "android", "comeback")
	require.Error(t, err)
}

func TestRegisterDeviceIsActiveNonPrimary(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	repo := newFakeDeviceRepo()
	m := NewDeviceSessionManager(repo)

	dev, err := m.RegisterDevice(ctx, userID, "fp-new", "ios", "personal")
	require.NoError(t, err)
	require.True(t, dev.Active)
	require.False(t, dev.Primary)
	require.Nil(t, dev.VerifiedAt)
}
