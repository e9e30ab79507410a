package db

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithRetryTx_RerunsOnSerializationFailure(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)
	client.retry = RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

	attempts := 0
	err := client.WithRetryTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if err := tx.Create(&testModel{Name: fmt.Sprintf("attempt-%d", attempts)}).Error; err != nil {
			return err
		}
		if attempts < 2 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected only the committed attempt to persist, got %d rows", count)
	}
}

func TestRetryPolicy_StopsOnNonRetryable(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}
	calls := 0
	sentinel := errors.New("validation")
	err := policy.Do(context.Background(), func() error {
		calls++
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestRetryPolicy_ExhaustsBudget(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	calls := 0
	err := policy.Do(context.Background(), func() error {
		calls++
		return &pq.Error{Code: "40P01"}
	})
	if !IsRetryable(err) {
		t.Fatalf("expected last deadlock error to surface, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		unique    bool
		retryable bool
	}{
		{name: "pgx unique", err: &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}, unique: true},
		{name: "pq serialization", err: &pq.Error{Code: "40001"}, retryable: true},
		{name: "pgx deadlock", err: fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: "40P01"}), retryable: true},
		{name: "sqlite unique", err: errors.New("UNIQUE constraint failed: orders.order_number"), unique: true},
		{name: "sqlite locked", err: errors.New("database is locked"), retryable: true},
		{name: "plain", err: errors.New("boom")},
		{name: "nil"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUniqueViolation(tt.err, ""); got != tt.unique {
				t.Fatalf("IsUniqueViolation = %v, want %v", got, tt.unique)
			}
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Fatalf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}

	if !IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}, "orders_order_number_key") {
		t.Fatalf("expected constraint-specific match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23505", ConstraintName: "sellers_store_name_key"}, "orders_order_number_key") {
		t.Fatalf("expected constraint mismatch to be rejected")
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := Wrap(db)
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}
