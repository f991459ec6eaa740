package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations.
// Supports two-phase caching: local LRU (Community) + Redis (Pro).
// All methods require cityID for strict per-city isolation.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, cityID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, cityID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, cityID string, key string) error

	// GetReport retrieves a cached analytics report.
	GetReport(ctx context.Context, cityID string, reportID string) (*Report, error)

	// SetReport caches an analytics report for fast retrieval.
	SetReport(ctx context.Context, cityID string, reportID string, report *Report, ttl time.Duration) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used to rate-limit analytics run triggers per city.
	IncrementCounter(ctx context.Context, cityID string, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
