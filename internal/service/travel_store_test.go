package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeTravelRepo mimics the postgres versioned upsert: insert wins only when
// no row exists, update wins only when the expected version matches.
type fakeTravelRepo struct {
	mu      sync.Mutex
	samples map[uuid.UUID]*models.TravelSample
}

func newFakeTravelRepo() *fakeTravelRepo {
	return &fakeTravelRepo{samples: map[uuid.UUID]*models.TravelSample{}}
}

func (f *fakeTravelRepo) Get(ctx context.Context, userID uuid.UUID) (*models.TravelSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.samples[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeTravelRepo) Upsert(ctx context.Context, sample *models.TravelSample, expectedVersion int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, exists := f.samples[sample.UserID]
	if expectedVersion == 0 {
		if exists {
			return repository.ErrStaleSample
		}
		sample.Version = 1
	} else {
		if !exists || cur.Version != expectedVersion {
			return repository.ErrStaleSample
		}
		sample.Version = expectedVersion + 1
	}
	cp := *sample
	f.samples[sample.UserID] = &cp
	return nil
}

type fakeTravelCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	versions map[string]int64
}

func newFakeTravelCache() *fakeTravelCache {
	return &fakeTravelCache{data: map[string][]byte{}, versions: map[string]int64{}}
}

func (f *fakeTravelCache) GetJSON(ctx context.Context, key string, dest interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.data[key]
	if !ok {
		return errors.New("cache miss")
	}
	return json.Unmarshal(b, dest)
}

func (f *fakeTravelCache) CompareAndSwapJSON(ctx context.Context, key string, value interface{}, expectedVersion, newVersion int64, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.versions[key]; ok && cur != expectedVersion {
		return false, nil
	}
	b, err := json.Marshal(value)
	if err != nil {
		return false, err
	}
	f.data[key] = b
	f.versions[key] = newVersion
	return true, nil
}

func travelAttempt(userID uuid.UUID, lat, lng float64, at time.Time) *models.CheckInAttempt {
	return &models.CheckInAttempt{
		ID:        uuid.New(),
		UserID:    userID,
		Latitude:  lat,
		Longitude: lng,
		Timestamp: at,
	}
}

func TestTravelStorePriorEmpty(t *testing.T) {
	store := NewTravelStore(newFakeTravelRepo(), nil, time.Hour)
	require.Nil(t, store.Prior(context.Background(), uuid.New()))
}

func TestTravelStoreRecordThenPrior(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	store := NewTravelStore(newFakeTravelRepo(), nil, time.Hour)

	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store.Record(ctx, travelAttempt(userID, -6.2088, 106.8456, at), nil)

	prior := store.Prior(ctx, userID)
	require.NotNil(t, prior)
	require.Equal(t, int64(1), prior.Version)
	require.Equal(t, -6.2088, prior.Latitude)
	require.Equal(t, at, prior.RecordedAt)
}

func TestTravelStoreVersionAdvances(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	store := NewTravelStore(newFakeTravelRepo(), nil, time.Hour)

	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store.Record(ctx, travelAttempt(userID, -6.20, 106.84, t0), nil)
	first := store.Prior(ctx, userID)

	store.Record(ctx, travelAttempt(userID, -6.21, 106.85, t0.Add(time.Hour)), first)
	second := store.Prior(ctx, userID)
	require.Equal(t, int64(2), second.Version)
	require.Equal(t, -6.21, second.Latitude)
}

func TestTravelStoreStaleWriteLoses(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	store := NewTravelStore(newFakeTravelRepo(), nil, time.Hour)

	t0 := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store.Record(ctx, travelAttempt(userID, -6.20, 106.84, t0), nil)
	prior := store.Prior(ctx, userID)

	// Two writers read the same version; the second one must lose.
	store.Record(ctx, travelAttempt(userID, -6.21, 106.85, t0.Add(time.Hour)), prior)
	store.Record(ctx, travelAttempt(userID, -6.99, 107.99, t0.Add(2*time.Hour)), prior)

	winner := store.Prior(ctx, userID)
	require.Equal(t, int64(2), winner.Version)
	require.Equal(t, -6.21, winner.Latitude, "first writer's position stands")
}

func TestTravelStoreCacheFastPath(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()
	repo := newFakeTravelRepo()
	cache := newFakeTravelCache()
	store := NewTravelStore(repo, cache, time.Hour)

	at := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	store.Record(ctx, travelAttempt(userID, -6.2088, 106.8456, at), nil)

	// Wipe the repo: the cache must serve the sample on its own.
	repo.mu.Lock()
	repo.samples = map[uuid.UUID]*models.TravelSample{}
	repo.mu.Unlock()

	prior := store.Prior(ctx, userID)
	require.NotNil(t, prior)
	require.Equal(t, int64(1), prior.Version)
}
