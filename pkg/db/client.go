package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// Client owns the shared GORM pool and the transaction retry policy.
type Client struct {
	conn  *gorm.DB
	retry RetryPolicy
}

func dialector(cfg config.DBConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "postgres":
		// simple protocol keeps PgBouncer in transaction mode happy
		return postgres.New(postgres.Config{DSN: cfg.DSN, PreferSimpleProtocol: true}), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// New opens the pool described by cfg and verifies it answers a ping.
func New(ctx context.Context, cfg config.DBConfig, logg *logger.Logger) (*Client, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database DSN is required")
	}
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}
	conn, err := gorm.Open(dial, &gorm.Config{
		Logger:                 newQueryLogger(logg, cfg.SlowQuery),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dial.Name(), err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	client := &Client{conn: conn, retry: RetryPolicy{MaxRetries: cfg.TxMaxRetries, BaseDelay: cfg.TxRetryBase}}
	if err := client.Ping(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", dial.Name(), err)
	}
	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"driver":         dial.Name(),
			"max_open_conns": cfg.MaxOpenConns,
		}), "db.connected")
	}
	return client, nil
}

// Wrap adopts an already opened connection with the default retry policy.
func Wrap(conn *gorm.DB) *Client {
	return &Client{conn: conn, retry: DefaultRetryPolicy()}
}

func (c *Client) DB() *gorm.DB {
	return c.conn
}

func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx commits when fn returns nil and rolls back on error or panic.
func (c *Client) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.conn.WithContext(ctx).Transaction(fn)
}

// WithRetryTx re-runs the whole transaction when the database reports a
// serialization failure or deadlock. fn must be safe to repeat.
func (c *Client) WithRetryTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return c.retry.Do(ctx, func() error {
		return c.WithTx(ctx, fn)
	})
}
