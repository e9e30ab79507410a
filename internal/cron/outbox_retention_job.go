package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultOutboxAttempts  = 10
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttempts int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Outbox      outboxPruner
	Retention   time.Duration
	MaxAttempts int
}

// NewOutboxRetentionJob prunes delivered and dead-lettered outbox rows.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultOutboxRetention
	}
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = defaultOutboxAttempts
	}
	return &outboxRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		outbox:    params.Outbox,
		retention: retention,
		attempts:  attempts,
		now:       time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	outbox    outboxPruner
	retention time.Duration
	attempts  int
	now       func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := j.outbox.DeletePublishedBefore(ctx, tx, cutoff, j.attempts)
		deleted = n
		return err
	})
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "outbox retention cleanup complete")
	return nil
}
