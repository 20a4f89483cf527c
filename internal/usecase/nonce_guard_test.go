package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wityliti/wityliti.io-sub000/internal/infrastructure/kvstore"
	"go.uber.org/zap"
)

func TestNonceGuardIssue(t *testing.T) {
	guard := NewNonceGuard(kvstore.NewMemory(nil), 0, zap.NewNop())

	a, err := guard.Issue()
	require.NoError(t, err)
	b, err := guard.Issue()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	assert.Equal(t, DefaultNonceTTL, guard.TTL())
}

func TestNonceGuardCheckOnce(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := kvstore.NewMemory(clock.Now)
	guard := NewNonceGuard(store, 5*time.Minute, zap.NewNop())

	nonce, err := guard.Issue()
	require.NoError(t, err)

	assert.True(t, guard.Check(ctx, nonce))
	assert.False(t, guard.Check(ctx, nonce))

	clock.Advance(4 * time.Minute)
	assert.False(t, guard.Check(ctx, nonce), "still inside the window")

	assert.False(t, guard.Check(ctx, ""))
}

func TestNonceGuardSweepsExpired(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := kvstore.NewMemory(clock.Now)
	guard := NewNonceGuard(store, 5*time.Minute, zap.NewNop())

	for _, n := range []string{"a", "b", "c"} {
		require.True(t, guard.Check(ctx, n))
	}
	assert.Equal(t, 3, store.Len())

	clock.Advance(5 * time.Minute)
	require.True(t, guard.Check(ctx, "d"))
	assert.Equal(t, 1, store.Len())
}

func TestNonceGuardConcurrentCheck(t *testing.T) {
	ctx := context.Background()
	guard := NewNonceGuard(kvstore.NewMemory(nil), time.Minute, zap.NewNop())

	var admitted int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if guard.Check(ctx, "shared") {
				atomic.AddInt32(&admitted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), admitted)
}
