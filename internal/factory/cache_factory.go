package factory

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mailscope/mailscope/internal/adapters/cache"
	"github.com/mailscope/mailscope/internal/config"
	"github.com/mailscope/mailscope/internal/core"
)

// CacheFactory creates result cache repositories
type CacheFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewCacheFactory creates a new cache factory
func NewCacheFactory(cfg *config.Config, logger *zap.Logger) *CacheFactory {
	return &CacheFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateCacheRepository creates a cache repository based on the
// configuration. Returns nil when caching is disabled; only the in-session
// memory cache exists since results must not outlive the process.
func (f *CacheFactory) CreateCacheRepository() (core.CacheRepository, error) {
	cacheCfg := f.cfg.GetCache()
	if !cacheCfg.Enabled {
		return nil, nil
	}

	switch cacheCfg.Type {
	case "memory":
		cleanupFreq, err := time.ParseDuration(cacheCfg.CleanupFrequency)
		if err != nil {
			return nil, fmt.Errorf("invalid cache cleanup frequency: %w", err)
		}
		return cache.NewMemoryCache(f.logger, cleanupFreq), nil
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cacheCfg.Type)
	}
}

// GetCacheTTL returns the configured cache TTL
func (f *CacheFactory) GetCacheTTL() (time.Duration, error) {
	return time.ParseDuration(f.cfg.GetCache().TTL)
}

// IsCacheEnabled returns whether caching is enabled
func (f *CacheFactory) IsCacheEnabled() bool {
	return f.cfg.GetCache().Enabled
}
