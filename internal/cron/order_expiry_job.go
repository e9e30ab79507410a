package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const defaultPendingOrderTTL = 48 * time.Hour

type orderExpirer interface {
	ExpireStaleOrders(ctx context.Context, cutoff time.Time) (int, error)
}

type OrderExpiryJobParams struct {
	Logger *logger.Logger
	Orders orderExpirer
	TTL    time.Duration
}

// NewOrderExpiryJob expires unpaid orders older than TTL and releases their stock.
func NewOrderExpiryJob(params OrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultPendingOrderTTL
	}
	return &orderExpiryJob{logg: params.Logger, orders: params.Orders, ttl: ttl, now: time.Now}, nil
}

type orderExpiryJob struct {
	logg   *logger.Logger
	orders orderExpirer
	ttl    time.Duration
	now    func() time.Time
}

func (j *orderExpiryJob) Name() string { return "order-expiry" }

func (j *orderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.orders.ExpireStaleOrders(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire stale orders: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"orders_expired": expired,
	}), "stale orders expired")
	return nil
}
