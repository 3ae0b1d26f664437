// Package cache stores JSON strings under a key with a TTL.
//
// A missing key is a miss, never an error. Callers treat cache errors as
// latency and fall back to computing the value directly.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AI2HU/gauge/internal/config"
)

// DefaultTTL is used for sampler and metric summary reads
const DefaultTTL = time.Hour

// Cache is a key to JSON string store
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Close() error
}

// New builds the cache selected by cfg
func New(cfg config.CacheConfig) (Cache, error) {
	switch cfg.Provider {
	case "redis":
		return NewRedis(cfg.URL)
	case "memory", "":
		return NewMemory(cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// Key derives a stable key from a prefix and any JSON-serializable parameters
func Key(prefix string, params interface{}) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cache key params: %w", err)
	}
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%s:%x", prefix, hash), nil
}
