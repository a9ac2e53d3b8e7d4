// Package core holds the repository ports the portal services depend on and the small pieces of
// business logic that sit directly on top of them.
package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/tribunal-ia/portal/internal/domain/model"
)

// CacheRepository defines the interface for caching operations.
// The core defines the port; the data layer provides the Redis implementation.
type CacheRepository interface {
	// Set stores a value in the cache with the given key and TTL.
	// If TTL is 0, the key will not expire.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get retrieves a value from the cache by key.
	// Returns nil if the key doesn't exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes a key from the cache.
	// Returns true if the key was deleted, false if it didn't exist.
	Delete(ctx context.Context, key string) (bool, error)

	// Health checks the health of the cache connection.
	Health(ctx context.Context) error
}

// SettingsCacheKey is the cache key holding the serialized settings row.
const SettingsCacheKey = "portal:settings"

// DefaultSettingsCacheTTL bounds how stale another instance's cached settings can be.
const DefaultSettingsCacheTTL = 30 * time.Second

// SettingsCacheOptions bundles dependencies for NewSettingsCache.
type SettingsCacheOptions struct {
	Repo   SettingsRepository // required
	Cache  CacheRepository    // required
	TTL    time.Duration
	Logger *slog.Logger
}

// SettingsCache is a read-through SettingsRepository. Every petition and dashboard render reads
// settings, while administrators change them rarely. Save writes through and drops the cached copy.
type SettingsCache struct {
	repo   SettingsRepository
	cache  CacheRepository
	ttl    time.Duration
	logger *slog.Logger
}

var _ SettingsRepository = (*SettingsCache)(nil)

// NewSettingsCache creates a SettingsCache. It panics when Repo or Cache is nil.
func NewSettingsCache(opts SettingsCacheOptions) *SettingsCache {
	if opts.Repo == nil || opts.Cache == nil {
		panic("settings cache requires Repo and Cache")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultSettingsCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsCache{
		repo:   opts.Repo,
		cache:  opts.Cache,
		ttl:    ttl,
		logger: logger.With("component", "settings_cache"),
	}
}

// Get returns the cached settings, loading and caching them on a miss.
// Cache failures fall back to the repository.
func (c *SettingsCache) Get(ctx context.Context) (model.Settings, error) {
	raw, err := c.cache.Get(ctx, SettingsCacheKey)
	if err != nil {
		c.logger.WarnContext(ctx, "settings cache read failed", "error", err)
	}
	if len(raw) > 0 {
		var s model.Settings
		if jsonErr := json.Unmarshal(raw, &s); jsonErr == nil {
			return s, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable cached settings")
	}

	s, err := c.repo.Get(ctx)
	if err != nil {
		return model.Settings{}, err
	}
	c.store(ctx, s)
	return s, nil
}

// Save persists the update, then replaces the cached copy with the saved row.
func (c *SettingsCache) Save(ctx context.Context, req model.UpdateSettingsRequest) (model.Settings, error) {
	s, err := c.repo.Save(ctx, req)
	if err != nil {
		return model.Settings{}, err
	}
	if _, delErr := c.cache.Delete(ctx, SettingsCacheKey); delErr != nil {
		c.logger.WarnContext(ctx, "settings cache invalidation failed", "error", delErr)
	}
	c.store(ctx, s)
	return s, nil
}

// Invalidate drops the cached settings.
func (c *SettingsCache) Invalidate(ctx context.Context) error {
	if _, err := c.cache.Delete(ctx, SettingsCacheKey); err != nil {
		return fmt.Errorf("invalidate settings cache: %w", err)
	}
	return nil
}

func (c *SettingsCache) store(ctx context.Context, s model.Settings) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, SettingsCacheKey, raw, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "settings cache write failed", "error", err)
	}
}
