package cache

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI2HU/gauge/internal/config"
)

type failingCache struct{}

func (failingCache) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}

func (failingCache) Set(context.Context, string, string, time.Duration) error {
	return errors.New("connection refused")
}

func (failingCache) Close() error { return nil }

type payload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

func TestMemoryGetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", `{"a":1}`, 0))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, v)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(time.Hour)

	require.NoError(t, m.Set(ctx, "k", "v", 10*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestKeyIsStable(t *testing.T) {
	params := map[string]interface{}{"model_id": "m1", "fields": []string{"input"}}

	a, err := Key("sampler", params)
	require.NoError(t, err)
	b, err := Key("sampler", params)
	require.NoError(t, err)
	c, err := Key("sampler", map[string]interface{}{"model_id": "m2", "fields": []string{"input"}})
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Regexp(t, `^sampler:[0-9a-f]{64}$`, a)
}

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(config.CacheConfig{Provider: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	_, err = New(config.CacheConfig{Provider: "memcached"})
	assert.Error(t, err)
}

func TestLoadMissThenHit(t *testing.T) {
	ctx := context.Background()
	l := NewLoader(NewMemory(time.Hour))

	calls := 0
	fn := func(context.Context) (payload, error) {
		calls++
		return payload{Name: "accuracy", Value: 0.9}, nil
	}

	v, outcome, err := Load(ctx, l, "k", time.Hour, fn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMiss, outcome)
	assert.Equal(t, payload{Name: "accuracy", Value: 0.9}, v)

	v, outcome, err = Load(ctx, l, "k", time.Hour, fn)
	require.NoError(t, err)
	assert.Equal(t, OutcomeHit, outcome)
	assert.Equal(t, 0.9, v.Value)
	assert.Equal(t, 1, calls)
}

func TestLoadFallsBackWhenCacheFails(t *testing.T) {
	l := NewLoader(failingCache{})

	v, outcome, err := Load(context.Background(), l, "k", time.Hour, func(context.Context) (payload, error) {
		return payload{Name: "direct"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeError, outcome)
	assert.Equal(t, "direct", v.Name)
}

func TestLoadPropagatesComputeError(t *testing.T) {
	l := NewLoader(NewMemory(time.Hour))
	boom := errors.New("boom")

	_, _, err := Load(context.Background(), l, "k", time.Hour, func(context.Context) (payload, error) {
		return payload{}, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok, _ := l.cache.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestLoadCollapsesConcurrentCalls(t *testing.T) {
	l := NewLoader(nil)
	var calls int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := Load(context.Background(), l, "same", time.Hour, func(context.Context) (int, error) {
				atomic.AddInt32(&calls, 1)
				<-release
				return 42, nil
			})
			assert.NoError(t, err)
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRedis(t *testing.T) {
	url := os.Getenv("GAUGE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("GAUGE_TEST_REDIS_URL not set")
	}

	ctx := context.Background()
	r, err := NewRedis(url)
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, r.Ping(ctx))

	key, err := Key("test", time.Now().UnixNano())
	require.NoError(t, err)

	_, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, key, "value", time.Minute))
	v, ok, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", v)
}
