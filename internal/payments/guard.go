package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/redis"
)

// EventGuard remembers processed webhook events so provider redeliveries are skipped.
type EventGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewEventGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*EventGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	if scope == "" {
		return nil, errors.New("scope is required")
	}
	return &EventGuard{store: store, ttl: ttl, scope: scope}, nil
}

// CheckAndMark reports whether eventID was already seen and marks it otherwise.
func (g *EventGuard) CheckAndMark(ctx context.Context, eventID string) (bool, error) {
	if eventID == "" {
		return false, errors.New("event id is required")
	}
	key := g.store.IdempotencyKey(g.scope, eventID)
	set, err := g.store.SetNX(ctx, key, "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set idempotency key: %w", err)
	}
	return !set, nil
}

// Forget clears the mark so a failed event can be processed on redelivery.
func (g *EventGuard) Forget(ctx context.Context, eventID string) error {
	if eventID == "" {
		return errors.New("event id is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(g.scope, eventID))
}
