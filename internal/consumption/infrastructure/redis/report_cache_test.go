package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*ReportCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache, err := NewReportCache(client, WithPrefix("test:"))
	require.NoError(t, err)
	return cache, mr
}

func TestReportCache_GetSet(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	_, ok, err := cache.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, "k1", []byte(`{"id":"r1"}`), time.Minute))
	data, ok, err := cache.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"r1"}`, string(data))
	assert.True(t, mr.Exists("test:k1"))

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportCache_Version(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	version, err := cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), version)

	require.NoError(t, cache.OverridesChanged(ctx))
	bumped, err := cache.BumpVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), bumped)

	version, err = cache.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestNewClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), mr.Addr())
	require.NoError(t, err)
	_ = client.Close()

	mr.Close()
	_, err = NewClient(context.Background(), mr.Addr())
	require.Error(t, err)
}

func TestNewReportCache_NilClient(t *testing.T) {
	_, err := NewReportCache(nil)
	require.Error(t, err)
}
