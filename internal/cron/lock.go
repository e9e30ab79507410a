package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLockName = "marketplace-cron"
	defaultLockTTL  = 55 * time.Minute
)

// Lock coordinates exclusive cron cycles across worker replicas.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

type lockStore interface {
	AcquireLock(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, name, owner string) (bool, error)
}

// RedisLock holds a named lock tagged with a per-acquire owner token.
type RedisLock struct {
	store lockStore
	name  string
	ttl   time.Duration
	owner string
}

func NewRedisLock(store lockStore, name string, ttl time.Duration) (*RedisLock, error) {
	if store == nil {
		return nil, errors.New("redis store required for cron lock")
	}
	if name == "" {
		name = defaultLockName
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{store: store, name: name, ttl: ttl}, nil
}

func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.AcquireLock(ctx, l.name, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.name, err)
	}
	if ok {
		l.owner = token
	}
	return ok, nil
}

// Release frees the lock only while this instance still owns it; an expired
// lock picked up by another replica is left alone.
func (l *RedisLock) Release(ctx context.Context) error {
	if l.owner == "" {
		return nil
	}
	owner := l.owner
	l.owner = ""
	if _, err := l.store.ReleaseLock(ctx, l.name, owner); err != nil {
		return fmt.Errorf("release lock %s: %w", l.name, err)
	}
	return nil
}
