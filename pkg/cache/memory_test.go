package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMemorySetGet(t *testing.T) {
	ctx := context.Background()
	mc := NewMemoryCache()
	defer mc.Close()

	type payload struct {
		Watermark string `json:"watermark"`
		Done      int    `json:"done"`
	}
	require.NoError(t, mc.Set(ctx, "cp:job", payload{Watermark: "AAPL", Done: 3}, 0))

	var got payload
	require.NoError(t, mc.Get(ctx, "cp:job", &got))
	assert.Equal(t, payload{Watermark: "AAPL", Done: 3}, got)

	var s string
	require.NoError(t, mc.Set(ctx, "raw", "value", 0))
	require.NoError(t, mc.Get(ctx, "raw", &s))
	assert.Equal(t, "value", s)

	assert.ErrorIs(t, mc.Get(ctx, "missing", &s), ErrCacheMiss)
	require.NoError(t, mc.Delete(ctx, "raw"))
	ok, err := mc.Exists(ctx, "raw")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clock.now))

	require.NoError(t, mc.Set(ctx, "k", 1, time.Minute))
	clock.t = clock.t.Add(30 * time.Second)
	ok, _ := mc.Exists(ctx, "k")
	assert.True(t, ok)

	extended, err := mc.Expire(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, extended)

	clock.t = clock.t.Add(61 * time.Second)
	var v int
	assert.ErrorIs(t, mc.Get(ctx, "k", &v), ErrCacheMiss)
}

func TestMemoryLock(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	mc := NewMemoryCache(WithMemoryClock(clock.now))

	ok, err := mc.TryLock(ctx, "lock:job", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = mc.TryLock(ctx, "lock:job", time.Minute)
	assert.False(t, ok, "held lock")

	clock.t = clock.t.Add(2 * time.Minute)
	ok, _ = mc.TryLock(ctx, "lock:job", time.Minute)
	assert.True(t, ok, "expired lock can be retaken")

	require.NoError(t, mc.Unlock(ctx, "lock:job"))
	ok, _ = mc.TryLock(ctx, "lock:job", time.Minute)
	assert.True(t, ok)
}
