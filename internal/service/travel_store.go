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

// travelCache is the slice of the redis client the store uses as a fast
// path in front of the versioned postgres row.
type travelCache interface {
	GetJSON(ctx context.Context, key string, dest interface{}) error
	CompareAndSwapJSON(ctx context.Context, key string, value interface{}, expectedVersion, newVersion int64, ttl time.Duration) (bool, error)
}

// TravelStore reads and advances the one current travel sample per user.
// Callers serialize per user (the evaluator holds the keyed lock); the
// versioned update below is the second line of defense when two instances
// of the service race on the same user.
type TravelStore struct {
	repo  repository.TravelRepository
	cache travelCache
	ttl   time.Duration
}

func NewTravelStore(repo repository.TravelRepository, cache travelCache, ttl time.Duration) *TravelStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TravelStore{repo: repo, cache: cache, ttl: ttl}
}

func travelKey(userID uuid.UUID) string {
	return fmt.Sprintf("travel:%s", userID)
}

// Prior returns the user's last accepted sample, or nil when there is none.
// A missing sample is not an error: impossible-travel simply does not fire.
func (s *TravelStore) Prior(ctx context.Context, userID uuid.UUID) *models.TravelSample {
	if s.cache != nil {
		var cached models.TravelSample
		if err := s.cache.GetJSON(ctx, travelKey(userID), &cached); err == nil && cached.Version > 0 {
			return &cached
		}
	}

	sample, err := s.repo.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			logger.Warn("travel sample read for user %s failed: %v", userID, err)
		}
		return nil
	}
	return sample
}

// Record replaces the current sample with the attempt's position,
// conditional on the version the caller read. Losing the conditional update
// means a concurrent check-in already advanced the sample; that one's
// position stands.
func (s *TravelStore) Record(ctx context.Context, attempt *models.CheckInAttempt, prior *models.TravelSample) {
	var expected int64
	if prior != nil {
		expected = prior.Version
	}

	sample := &models.TravelSample{
		UserID:     attempt.UserID,
		Latitude:   attempt.Latitude,
		Longitude:  attempt.Longitude,
		RecordedAt: attempt.Timestamp,
	}
	if err := s.repo.Upsert(ctx, sample, expected); err != nil {
		if errors.Is(err, repository.ErrStaleSample) {
			logger.Debug("travel sample for user %s advanced concurrently, keeping winner", attempt.UserID)
		} else {
			logger.Error("travel sample update for user %s failed: %v", attempt.UserID, err)
		}
		return
	}

	if s.cache != nil {
		swapped, err := s.cache.CompareAndSwapJSON(ctx, travelKey(attempt.UserID), sample, expected, sample.Version, s.ttl)
		if err != nil {
			logger.Debug("travel sample cache update for user %s failed: %v", attempt.UserID, err)
		} else if !swapped {
			logger.Debug("travel sample cache for user %s moved ahead, leaving it", attempt.UserID)
		}
	}
}
