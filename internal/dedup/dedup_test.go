package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey_SameBucketSameKey(t *testing.T) {
	base := time.Date(2024, 5, 1, 10, 5, 0, 0, time.UTC)
	a := Key(KindViolation, "t1", "u1", Bucket(base, time.Hour))
	b := Key(KindViolation, "t1", "u1", Bucket(base.Add(40*time.Minute), time.Hour))
	c := Key(KindViolation, "t1", "u1", Bucket(base.Add(time.Hour), time.Hour))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, "sla_violate:t1:u1:1714557600", a)
	assert.NotEqual(t, a, Key(KindWarning, "t1", "u1", Bucket(base, time.Hour)))
}

func TestWarningKey_TiedToEntry(t *testing.T) {
	assert.Equal(t, "sla_warn:t1:u1:e1", WarningKey("t1", "u1", "e1"))
	assert.NotEqual(t, WarningKey("t1", "u1", "e1"), WarningKey("t1", "u1", "e2"))
	assert.NotEqual(t, WarningKey("t1", "u1", "e1"), WarningKey("t1", "u2", "e1"))
}

func TestRedisCache_PutAndExpire(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	cache := NewRedisCache(client, "dedup:")

	ok, err := cache.ContainsKey(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Put(ctx, "k", time.Minute))
	ok, err = cache.ContainsKey(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("dedup:k"))

	mr.FastForward(2 * time.Minute)
	ok, err = cache.ContainsKey(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_SurfacesConnectionErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedisCache(client, "").ContainsKey(context.Background(), "k")
	assert.Error(t, err)
}

func TestMemoryCache_PutAndExpire(t *testing.T) {
	cache, err := NewMemoryCache(1000)
	require.NoError(t, err)
	t.Cleanup(cache.Close)

	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "k", 150*time.Millisecond))
	ok, err := cache.ContainsKey(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(300 * time.Millisecond)
	ok, err = cache.ContainsKey(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}
