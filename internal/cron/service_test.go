package cron

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	err      error
	released int
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type countingJob struct {
	name string
	err  error
	runs int
}

func (c *countingJob) Name() string { return c.name }

func (c *countingJob) Run(context.Context) error {
	c.runs++
	return c.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Logger:   logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard}),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRunCycleRunsEveryJobAndJoinsFailures(t *testing.T) {
	ok := &countingJob{name: "order-expiry"}
	bad := &countingJob{name: "finance-snapshot", err: errors.New("bigquery down")}
	lock := &fakeLock{}
	svc := newTestService(t, lock, bad, ok)

	err := svc.runCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "finance-snapshot: bigquery down") {
		t.Fatalf("expected joined job error, got %v", err)
	}
	if ok.runs != 1 || bad.runs != 1 {
		t.Fatalf("expected both jobs to run once, got ok=%d bad=%d", ok.runs, bad.runs)
	}
	if lock.released != 1 || lock.held {
		t.Fatalf("expected lock released after cycle")
	}
}

func TestRunCycleSkipsWhenLockHeld(t *testing.T) {
	job := &countingJob{name: "order-expiry"}
	svc := newTestService(t, &fakeLock{held: true}, job)

	if err := svc.runCycle(context.Background()); err != nil {
		t.Fatalf("runCycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("expected job skipped, ran %d times", job.runs)
	}
}

func TestRunCycleSurfacesLockError(t *testing.T) {
	job := &countingJob{name: "order-expiry"}
	svc := newTestService(t, &fakeLock{err: errors.New("redis unavailable")}, job)

	if err := svc.runCycle(context.Background()); err == nil {
		t.Fatal("expected lock error")
	}
	if job.runs != 0 {
		t.Fatalf("expected no job runs, got %d", job.runs)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	job := &countingJob{name: "order-expiry"}
	svc := newTestService(t, &fakeLock{}, job)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected initial cycle to run once, ran %d", job.runs)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(ServiceParams{Lock: &fakeLock{}}); err == nil {
		t.Fatal("expected missing logger error")
	}
	logg := logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
	if _, err := NewService(ServiceParams{Logger: logg}); err == nil {
		t.Fatal("expected missing lock error")
	}
}
