package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/KlinikCare/attendance-service/internal/models"
	"github.com/KlinikCare/attendance-service/internal/repository"
	"github.com/KlinikCare/attendance-service/internal/util/logger"
)

// configCache is the optional redis layer in front of the database row. The
// interface matches client.RedisClient's JSON helpers so tests can fake it.
type configCache interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest interface{}) error
	DelKeys(ctx context.Context, keys ...string) error
}

const configCacheKey = "detcfg:active"

// ConfigStore serves the current detection configuration from an immutable
// in-process snapshot. Reads are lock-free; Invalidate swaps the snapshot
// pointer so in-flight evaluations keep seeing a consistent config. When the
// backing storage is unreachable on reload, the last-known-good snapshot
// stays authoritative (availability over strict freshness).
type ConfigStore struct {
	repo     repository.ConfigRepository
	cache    configCache
	cacheTTL time.Duration

	current  atomic.Pointer[models.DetectionConfig]
	lastGood atomic.Pointer[models.DetectionConfig]
}

func NewConfigStore(repo repository.ConfigRepository, cache configCache, cacheTTL time.Duration) *ConfigStore {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &ConfigStore{
		repo:     repo,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Current returns the active detection config, reloading from storage on the
// first access after an invalidation.
func (s *ConfigStore) Current(ctx context.Context) *models.DetectionConfig {
	if cfg := s.current.Load(); cfg != nil {
		return cfg
	}
	return s.reload(ctx)
}

// Invalidate drops the cached snapshot; the next Current reloads. Bound to
// the administrative "clear cache" action.
func (s *ConfigStore) Invalidate(ctx context.Context) {
	s.current.Store(nil)
	if s.cache != nil {
		if err := s.cache.DelKeys(ctx, configCacheKey); err != nil {
			logger.Warn("config cache invalidation failed: %v", err)
		}
	}
}

// Save validates the replacement config and makes it active. An invalid
// config is rejected before it can become authoritative; the previous one
// stays in force.
func (s *ConfigStore) Save(ctx context.Context, cfg *models.DetectionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.repo.Save(ctx, cfg); err != nil {
		return err
	}
	s.Invalidate(ctx)
	return nil
}

func (s *ConfigStore) reload(ctx context.Context) *models.DetectionConfig {
	// Redis first, database second. The cache holds the already-validated
	// document, so a hit skips both the query and the validation.
	if s.cache != nil {
		var cached models.DetectionConfig
		if err := s.cache.GetJSON(ctx, configCacheKey, &cached); err == nil && !cached.UpdatedAt.IsZero() {
			s.current.Store(&cached)
			s.lastGood.Store(&cached)
			return &cached
		}
	}

	cfg, err := s.repo.GetActive(ctx)
	if err != nil {
		if last := s.lastGood.Load(); last != nil {
			logger.Warn("detection config reload failed, serving last-known-good: %v", err)
			s.current.Store(last)
			return last
		}
		logger.Error("detection config unavailable and no last-known-good, serving defaults: %v", err)
		def := models.DefaultDetectionConfig()
		s.current.Store(def)
		return def
	}

	if err := cfg.Validate(); err != nil {
		if last := s.lastGood.Load(); last != nil {
			logger.Error("stored detection config invalid, keeping previous: %v", err)
			s.current.Store(last)
			return last
		}
		logger.Error("stored detection config invalid and no previous config, serving defaults: %v", err)
		def := models.DefaultDetectionConfig()
		s.current.Store(def)
		return def
	}

	s.current.Store(cfg)
	s.lastGood.Store(cfg)
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, configCacheKey, cfg, s.cacheTTL); err != nil {
			logger.Debug("config cache write failed: %v", err)
		}
	}
	return cfg
}
