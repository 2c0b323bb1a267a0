package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kapu/persona-globe-go/internal/config"
	"github.com/kapu/persona-globe-go/pkg/errors"
)

type entry struct {
	ID     string  `json:"id"`
	Rating float64 `json:"rating"`
}

func newTestCache(t *testing.T) (*CacheService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheServiceFromClient(client, zap.NewNop()), mr
}

func TestSetGetRoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []entry{{ID: "ny-1", Rating: 8.5}}, time.Minute))

	var got []entry
	found, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []entry{{ID: "ny-1", Rating: 8.5}}, got)

	mr.FastForward(2 * time.Minute)
	found, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetMissIsNotAnError(t *testing.T) {
	c, _ := newTestCache(t)

	found, err := c.Get(context.Background(), "absent", nil)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestGetCorruptValue(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("bad", "{not json"))

	var got []entry
	_, err := c.Get(context.Background(), "bad", &got)
	var cacheErr *errors.CacheError
	require.ErrorAs(t, err, &cacheErr)
	assert.Equal(t, "get", cacheErr.Operation)
}

func TestDelAndConnectivity(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", 1, 0))
	require.NoError(t, c.Del(ctx, "k"))
	assert.False(t, mr.Exists("k"))
	assert.True(t, c.IsConnected(ctx))

	mr.Close()
	assert.False(t, c.IsConnected(ctx))
}

func TestNewCacheServicePingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	host, port := mr.Host(), mr.Server().Addr().Port

	c, err := NewCacheService(config.RedisConfig{Host: host, Port: port}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
