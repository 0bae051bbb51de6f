package lockout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/melody/internal/cache"
)

func TestTracker_ThresholdAndClear(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := New(cache.NewMemory(time.Minute), "failedLogin", 3, time.Hour)

	for i := 0; i < 2; i++ {
		require.NoError(t, tr.Check(ctx, "User@Example.com"))
		locked, err := tr.Fail(ctx, "user@example.com")
		require.NoError(t, err)
		assert.False(t, locked)
	}
	locked, err := tr.Fail(ctx, "USER@example.com")
	require.NoError(t, err)
	assert.True(t, locked)
	assert.ErrorIs(t, tr.Check(ctx, "user@example.com"), ErrLocked)

	require.NoError(t, tr.Clear(ctx, "user@example.com"))
	assert.NoError(t, tr.Check(ctx, "user@example.com"))
}

func TestTracker_ZeroThresholdDisables(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := New(cache.NewMemory(time.Minute), "failedLogin", 0, time.Hour)
	for i := 0; i < 10; i++ {
		locked, err := tr.Fail(ctx, "a@b.c")
		require.NoError(t, err)
		require.False(t, locked)
	}
	assert.NoError(t, tr.Check(ctx, "a@b.c"))
	assert.False(t, tr.Enabled())
}

func TestTracker_WindowExpiryUnlocks(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	tr := New(cache.NewRedisWithClient(rdb, ""), "failedLogin", 2, 10*time.Minute)
	_, _ = tr.Fail(ctx, "a@b.c")
	_, _ = tr.Fail(ctx, "a@b.c")
	require.True(t, errors.Is(tr.Check(ctx, "a@b.c"), ErrLocked))

	ra, err := tr.RetryAfter(ctx, "a@b.c")
	require.NoError(t, err)
	assert.InDelta(t, (10 * time.Minute).Seconds(), ra.Seconds(), 1)

	mr.FastForward(11 * time.Minute)
	assert.NoError(t, tr.Check(ctx, "a@b.c"))
}
