//go:build integration

package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

func startRedis(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate redis container: %v", err)
		}
	})
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	c, err := New(ctx, config.RedisConfig{Address: fmt.Sprintf("%s:%s", host, port.Port()), PoolSize: 4}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestFixedWindowAllowAgainstRedis(t *testing.T) {
	c := startRedis(t)
	ctx := context.Background()

	for want := int64(1); want <= 2; want++ {
		allowed, count, err := c.FixedWindowAllow(ctx, "guest-checkout:ip:1.2.3.4", 2, time.Minute)
		require.NoError(t, err)
		require.True(t, allowed)
		require.Equal(t, want, count)
	}
	allowed, count, err := c.FixedWindowAllow(ctx, "guest-checkout:ip:1.2.3.4", 2, time.Minute)
	require.NoError(t, err)
	require.False(t, allowed)
	require.EqualValues(t, 3, count)

	ttl, err := c.rdb.PTTL(ctx, c.RateLimitKey("guest-checkout:ip:1.2.3.4")).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 50*time.Second)
}

func TestLockReleaseRespectsOwner(t *testing.T) {
	c := startRedis(t)
	ctx := context.Background()

	ok, err := c.AcquireLock(ctx, "cron", "a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.AcquireLock(ctx, "cron", "b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	released, err := c.ReleaseLock(ctx, "cron", "b")
	require.NoError(t, err)
	require.False(t, released)
	released, err = c.ReleaseLock(ctx, "cron", "a")
	require.NoError(t, err)
	require.True(t, released)

	_, err = c.Get(ctx, c.LockKey("cron"))
	require.ErrorIs(t, err, redis.Nil)
}

func TestSetOverwritesReservedKey(t *testing.T) {
	c := startRedis(t)
	ctx := context.Background()
	key := c.IdempotencyKey("buyer", "abc")

	reserved, err := c.SetNX(ctx, key, "pending", time.Minute)
	require.NoError(t, err)
	require.True(t, reserved)
	require.NoError(t, c.Set(ctx, key, "done", time.Hour))

	reserved, err = c.SetNX(ctx, key, "again", time.Minute)
	require.NoError(t, err)
	require.False(t, reserved)
	got, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "done", got)

	ttl, err := c.rdb.PTTL(ctx, key).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, 50*time.Minute)
}
