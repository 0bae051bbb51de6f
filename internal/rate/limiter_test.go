package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/melody/internal/cache"
)

func redisCache(t *testing.T) (cache.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewRedisWithClient(rdb, ""), mr
}

func TestFixedWindow_BlocksAfterMaxAndResets(t *testing.T) {
	ctx := context.Background()
	c, mr := redisCache(t)
	l := NewFixedWindow(c, "rl", 3, time.Minute)

	for i := 1; i <= 3; i++ {
		res, err := l.Allow(ctx, "10.0.0.1|/identity/v1/authorize-password")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(3-i), res.Remaining)
	}
	res, err := l.Allow(ctx, "10.0.0.1|/identity/v1/authorize-password")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, res.RetryAfter, time.Minute)

	// otra clave no comparte ventana
	res, err = l.Allow(ctx, "10.0.0.2|/identity/v1/authorize-password")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	mr.FastForward(61 * time.Second)
	res, err = l.Allow(ctx, "10.0.0.1|/identity/v1/authorize-password")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(1), res.CurrentHits)
}

func TestMultiLimiter_SeparateConfigs(t *testing.T) {
	ctx := context.Background()
	c, _ := redisCache(t)
	m := NewMultiLimiter(c, "rl")

	strict := m.Fixed(1, time.Minute)
	loose := m.Fixed(5, time.Minute)

	res, err := strict.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = strict.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	res, err = loose.Allow(ctx, "ip")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(4), res.Remaining)
}

func TestFixedWindow_MemoryBackend(t *testing.T) {
	ctx := context.Background()
	l := NewFixedWindow(cache.NewMemory(time.Minute), "", 1, time.Minute)
	res, err := l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	res, err = l.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}
