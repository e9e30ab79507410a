package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

func TestOptionsRequiresAnEndpoint(t *testing.T) {
	_, err := Options(config.RedisConfig{})
	require.Error(t, err)

	_, err = Options(config.RedisConfig{URL: "http://not-redis"})
	require.Error(t, err)
}

func TestOptionsURLKeepsItsOwnSettings(t *testing.T) {
	opts, err := Options(config.RedisConfig{
		URL:         "redis://:secret@cache:6380/2?dial_timeout=2s",
		DB:          5,
		PoolSize:    7,
		DialTimeout: 9 * time.Second,
		ReadTimeout: 3 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "cache:6380", opts.Addr)
	require.Equal(t, "secret", opts.Password)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, 7, opts.PoolSize)
	require.Equal(t, 2*time.Second, opts.DialTimeout)
	require.Equal(t, 3*time.Second, opts.ReadTimeout)
}

func TestOptionsFromAddress(t *testing.T) {
	opts, err := Options(config.RedisConfig{Address: "localhost:6379", DB: 4, MinIdleConns: 2, WriteTimeout: time.Second})
	require.NoError(t, err)
	require.Equal(t, "localhost:6379", opts.Addr)
	require.Equal(t, 4, opts.DB)
	require.Equal(t, 2, opts.MinIdleConns)
	require.Equal(t, time.Second, opts.WriteTimeout)
}

func TestKeysAreNamespaced(t *testing.T) {
	c := &Client{}
	require.Equal(t, "mkt:idempotency:POST /api/v1/checkout:abc", c.IdempotencyKey("POST /api/v1/checkout", "abc"))
	require.Equal(t, "mkt:rate_limit:guest-checkout:ip:10.0.0.1", c.RateLimitKey("guest-checkout:ip:10.0.0.1"))
	require.Equal(t, "mkt:lock:marketplace-cron-prod", c.LockKey("marketplace-cron-prod"))
	require.Equal(t, "mkt:a:b", Key("a", " ", "b "))
	require.Equal(t, "mkt", Key())
}

func TestDisconnectedClientFailsFast(t *testing.T) {
	var c *Client
	ctx := context.Background()

	require.ErrorIs(t, c.Ping(ctx), errNotConnected)
	require.ErrorIs(t, c.Set(ctx, "k", "v", time.Second), errNotConnected)
	_, err := c.SetNX(ctx, "k", "v", time.Second)
	require.ErrorIs(t, err, errNotConnected)
	_, _, err = c.FixedWindowAllow(ctx, "scope", 1, time.Second)
	require.ErrorIs(t, err, errNotConnected)
	_, err = c.ReleaseLock(ctx, "cron", "owner")
	require.ErrorIs(t, err, errNotConnected)
	require.NoError(t, c.Close())
}
