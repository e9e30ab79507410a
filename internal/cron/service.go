package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval while holding the
// distributed lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (s *Service) Run(ctx context.Context) error {
	s.tick(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron worker stopping")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "cron cycle failed", err)
	}
}

// runCycle returns the combined job errors so callers can tell a partially
// failed cycle from a clean one; every job still runs.
func (s *Service) runCycle(ctx context.Context) (err error) {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "cron lock held elsewhere, skipping cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Warn(ctx, fmt.Sprintf("cron lock release: %v", relErr))
		}
	}()

	for _, job := range s.registry.Jobs() {
		err = multierr.Append(err, s.runJob(ctx, job))
	}
	return err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})
	start := s.now()
	err := job.Run(jobCtx)
	finished := s.now()
	elapsed := finished.Sub(start)
	s.metrics.ObserveRun(name, finished, elapsed, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", elapsed.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "cron job failed", err)
		return fmt.Errorf("%s: %w", name, err)
	}
	s.logg.Info(jobCtx, "cron job completed")
	return nil
}
