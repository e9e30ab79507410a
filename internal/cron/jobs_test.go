package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

type fakeExpirer struct {
	cutoff time.Time
	n      int
	err    error
}

func (f *fakeExpirer) ExpireStaleOrders(_ context.Context, cutoff time.Time) (int, error) {
	f.cutoff = cutoff
	return f.n, f.err
}

func TestOrderExpiryJobUsesTTLCutoff(t *testing.T) {
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)
	orders := &fakeExpirer{n: 3}
	job, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: testLogger(), Orders: orders, TTL: 2 * time.Hour})
	if err != nil {
		t.Fatalf("NewOrderExpiryJob: %v", err)
	}
	job.(*orderExpiryJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-2 * time.Hour); !orders.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, orders.cutoff)
	}
	if job.Name() != "order-expiry" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
}

func TestOrderExpiryJobDefaultsAndErrors(t *testing.T) {
	orders := &fakeExpirer{err: errors.New("db down")}
	job, _ := NewOrderExpiryJob(OrderExpiryJobParams{Logger: testLogger(), Orders: orders})
	if ttl := job.(*orderExpiryJob).ttl; ttl != defaultPendingOrderTTL {
		t.Fatalf("expected default ttl, got %v", ttl)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if _, err := NewOrderExpiryJob(OrderExpiryJobParams{Logger: testLogger()}); err == nil {
		t.Fatal("expected missing orders error")
	}
}

type fakePruner struct {
	cutoff   time.Time
	attempts int
	err      error
}

func (f *fakePruner) DeletePublishedBefore(_ context.Context, _ *gorm.DB, cutoff time.Time, minAttempts int) (int64, error) {
	f.cutoff = cutoff
	f.attempts = minAttempts
	return 4, f.err
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func TestOutboxRetentionJobPrunesWithDefaults(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	pruner := &fakePruner{}
	job, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: testLogger(), DB: passthroughTx{}, Outbox: pruner})
	if err != nil {
		t.Fatalf("NewOutboxRetentionJob: %v", err)
	}
	job.(*outboxRetentionJob).now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := now.Add(-defaultOutboxRetention); !pruner.cutoff.Equal(want) {
		t.Fatalf("expected cutoff %s, got %s", want, pruner.cutoff)
	}
	if pruner.attempts != defaultOutboxAttempts {
		t.Fatalf("expected attempts %d, got %d", defaultOutboxAttempts, pruner.attempts)
	}
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	pruner := &fakePruner{err: errors.New("boom")}
	job, _ := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: testLogger(), DB: passthroughTx{}, Outbox: pruner})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

type fakeExporter struct {
	calls int
	err   error
}

func (f *fakeExporter) Export(context.Context) (string, error) {
	f.calls++
	return "snap-1", f.err
}

func TestFinanceSnapshotJob(t *testing.T) {
	exporter := &fakeExporter{}
	job, err := NewFinanceSnapshotJob(testLogger(), exporter)
	if err != nil {
		t.Fatalf("NewFinanceSnapshotJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	exporter.err = errors.New("quota")
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected export error")
	}
	if exporter.calls != 2 {
		t.Fatalf("expected 2 export calls, got %d", exporter.calls)
	}
}
