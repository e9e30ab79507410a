package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const keyNamespace = "mkt"

// Key kinds; every key is mkt:<kind>:<parts...>.
const (
	kindIdempotency = "idempotency"
	kindRateLimit   = "rate_limit"
	kindLock        = "lock"
)

var errNotConnected = errors.New("redis client not connected")

// fixedWindow increments a counter and starts its window on the first hit,
// in one round trip so a crash between INCR and PEXPIRE cannot leave an
// immortal counter.
var fixedWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// releaseOwned deletes a lock only while it still holds the caller's token.
var releaseOwned = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdempotencyStore is the surface the idempotency middleware and webhook
// de-duplication need.
type IdempotencyStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	Set(context.Context, string, any, time.Duration) error
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// Client serves request idempotency, webhook de-duplication, guest rate
// limits and the cron leader lock from one connection pool.
type Client struct {
	rdb redis.UniversalClient
}

// New dials Redis and verifies connectivity before returning.
func New(ctx context.Context, cfg config.RedisConfig, logg *logger.Logger) (*Client, error) {
	opts, err := Options(cfg)
	if err != nil {
		return nil, err
	}
	c := Wrap(redis.NewClient(opts))
	if err := c.Ping(ctx); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{"addr": opts.Addr, "db": opts.DB}), "redis.connected")
	}
	return c, nil
}

// Wrap adapts an existing go-redis client.
func Wrap(rdb redis.UniversalClient) *Client {
	return &Client{rdb: rdb}
}

// Options resolves connection settings. A URL wins over the discrete
// address fields; pool and timeout settings fill in whatever the URL omits.
func Options(cfg config.RedisConfig) (*redis.Options, error) {
	var opts *redis.Options
	switch {
	case cfg.URL != "":
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
		if opts.DB == 0 {
			opts.DB = cfg.DB
		}
	case cfg.Address != "":
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	default:
		return nil, errors.New("redis url or address is required")
	}
	fill := func(dst *time.Duration, v time.Duration) {
		if *dst == 0 {
			*dst = v
		}
	}
	if opts.PoolSize == 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if opts.MinIdleConns == 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	fill(&opts.DialTimeout, cfg.DialTimeout)
	fill(&opts.ReadTimeout, cfg.ReadTimeout)
	fill(&opts.WriteTimeout, cfg.WriteTimeout)
	return opts, nil
}

func (c *Client) conn() (redis.UniversalClient, error) {
	if c == nil || c.rdb == nil {
		return nil, errNotConnected
	}
	return c.rdb, nil
}

// Get returns redis.Nil when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	rdb, err := c.conn()
	if err != nil {
		return "", err
	}
	return rdb.Get(ctx, key).Result()
}

// SetNX reports whether this caller created the key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	rdb, err := c.conn()
	if err != nil {
		return false, err
	}
	return rdb.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, value, ttl).Err()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Del(ctx, keys...).Err()
}

// FixedWindowAllow counts a hit against scope and reports whether the
// count is still within limit for the current window.
func (c *Client) FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error) {
	rdb, err := c.conn()
	if err != nil {
		return false, 0, err
	}
	count, err := fixedWindow.Run(ctx, rdb, []string{c.RateLimitKey(scope)}, window.Milliseconds()).Int64()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	return count <= limit, count, nil
}

// AcquireLock takes the named lock for ttl, tagged with owner.
func (c *Client) AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	return c.SetNX(ctx, c.LockKey(name), owner, ttl)
}

// ReleaseLock frees the named lock if owner still holds it. It reports
// false when the lock had expired or moved to another owner.
func (c *Client) ReleaseLock(ctx context.Context, name, owner string) (bool, error) {
	rdb, err := c.conn()
	if err != nil {
		return false, err
	}
	n, err := releaseOwned.Run(ctx, rdb, []string{c.LockKey(name)}, owner).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return Key(kindIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return Key(kindRateLimit, scope)
}

func (c *Client) LockKey(name string) string {
	return Key(kindLock, name)
}

// Key joins non-blank parts under the service namespace.
func Key(parts ...string) string {
	b := strings.Builder{}
	b.WriteString(keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			b.WriteByte(':')
			b.WriteString(part)
		}
	}
	return b.String()
}
