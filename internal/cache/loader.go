package cache

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AI2HU/gauge/internal/logger"
)

// Outcome of a cached read
type Outcome string

const (
	OutcomeHit   Outcome = "hit"
	OutcomeMiss  Outcome = "miss"
	OutcomeError Outcome = "error"
)

// Loader reads JSON values through a Cache. Concurrent loads of one key share a
// single computation and cache failures fall back to computing directly.
type Loader struct {
	cache Cache
	group singleflight.Group
	log   *logger.Logger
}

// NewLoader wraps c; a nil cache always computes
func NewLoader(c Cache) *Loader {
	return &Loader{cache: c, log: logger.Named("cache")}
}

type loaded struct {
	data    []byte
	outcome Outcome
}

// Load returns the value stored under key, computing and storing it with fn on a miss
func Load[T any](ctx context.Context, l *Loader, key string, ttl time.Duration, fn func(context.Context) (T, error)) (T, Outcome, error) {
	var zero T

	v, err, _ := l.group.Do(key, func() (interface{}, error) {
		outcome := OutcomeMiss
		if l.cache != nil {
			raw, ok, err := l.cache.Get(ctx, key)
			switch {
			case err != nil:
				l.log.Warning("Cache read failed for %s, computing directly: %v", key, err)
				outcome = OutcomeError
			case ok:
				return loaded{data: []byte(raw), outcome: OutcomeHit}, nil
			}
		}

		value, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}

		if l.cache != nil && outcome != OutcomeError {
			if err := l.cache.Set(ctx, key, string(data), ttl); err != nil {
				l.log.Warning("Cache write failed for %s: %v", key, err)
				outcome = OutcomeError
			}
		}
		return loaded{data: data, outcome: outcome}, nil
	})
	if err != nil {
		return zero, OutcomeMiss, err
	}

	res := v.(loaded)
	var out T
	if err := json.Unmarshal(res.data, &out); err != nil {
		if res.outcome != OutcomeHit {
			return zero, res.outcome, err
		}
		// a corrupt entry is treated as a miss
		l.log.Warning("Discarding undecodable cache entry %s: %v", key, err)
		value, err := fn(ctx)
		return value, OutcomeError, err
	}
	return out, res.outcome, nil
}
