package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/kvstore"
	"go.uber.org/zap"
)

func TestRateLimiterWindow(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	limiter := NewRateLimiter(kvstore.NewMemory(clock.Now), 10, time.Minute, clock.Now, zap.NewNop())
	start := clock.Now()

	for i := 1; i <= 10; i++ {
		res, err := limiter.Check(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 10-i, res.Remaining)
		assert.Equal(t, start.Add(time.Minute), res.ResetAt)
		clock.Advance(time.Second)
	}

	res, err := limiter.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, 10, res.Limit)
	assert.Equal(t, 50, res.RetryAfter(clock.Now()))

	other, err := limiter.Check(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	// reset happens only once now is past reset_at
	clock.Advance(50 * time.Second)
	res, err = limiter.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	clock.Advance(time.Millisecond)
	res, err = limiter.Check(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 9, res.Remaining, "fresh window counts this request as 1")
	assert.Equal(t, clock.Now().Add(time.Minute), res.ResetAt)
}

func TestRateLimiterConcurrent(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	limiter := NewRateLimiter(kvstore.NewMemory(clock.Now), 10, time.Minute, clock.Now, zap.NewNop())

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Check(ctx, "burst")
			if err == nil && res.Allowed {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(10), allowed)
}

type failingStore struct {
	kvstore.Store
}

func (failingStore) Get(ctx context.Context, key string) (string, bool, error) {
	return "", false, errors.New("store down")
}

func TestRateLimiterStoreError(t *testing.T) {
	limiter := NewRateLimiter(failingStore{}, 10, time.Minute, nil, zap.NewNop())
	_, err := limiter.Check(context.Background(), "x")
	assert.Error(t, err)
}
