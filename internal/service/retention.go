package service

import (
	"context"
	"time"

	"github.com/KlinikCare/attendance-service/internal/repository"
	"github.com/KlinikCare/attendance-service/internal/util/logger"
)

// RetentionService purges detection results older than the config's
// retention window. Invoked by an external scheduler through the admin API;
// there is no background loop inside the core.
type RetentionService struct {
	store   *ConfigStore
	results repository.ResultRepository
	now     func() time.Time
}

func NewRetentionService(store *ConfigStore, results repository.ResultRepository) *RetentionService {
	return &RetentionService{store: store, results: results, now: time.Now}
}

// PurgeExpiredResults deletes results past the retention window and returns
// how many rows were removed.
func (s *RetentionService) PurgeExpiredResults(ctx context.Context) (int64, error) {
	cfg := s.store.Current(ctx)
	days := cfg.LogRetentionDays
	if days <= 0 {
		days = 90
	}
	cutoff := s.now().AddDate(0, 0, -days)

	n, err := s.results.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info("purged %d detection results older than %s", n, cutoff.Format("2006-01-02"))
	}
	return n, nil
}
