package finance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/bigquery"
	"github.com/angelmondragon/marketplace-backend/pkg/checkout"
)

const (
	defaultMaxAttempts    = 3
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaximumBackoff = 2 * time.Second
)

// FinanceSnapshotRow mirrors the finance_snapshots BigQuery schema.
type FinanceSnapshotRow struct {
	SnapshotID           string    `bigquery:"snapshot_id"`
	TakenAt              time.Time `bigquery:"taken_at"`
	PlatformRevenueCents int64     `bigquery:"platform_revenue_cents"`
	SellerEarningsCents  int64     `bigquery:"seller_earnings_cents"`
	GMVCents             int64     `bigquery:"gmv_cents"`
	PendingPayoutsCents  int64     `bigquery:"pending_payouts_cents"`
	OrdersCount          int64     `bigquery:"orders_count"`
}

// PayoutSnapshotRow mirrors the payout_snapshots BigQuery schema.
type PayoutSnapshotRow struct {
	SnapshotID      string    `bigquery:"snapshot_id"`
	TakenAt         time.Time `bigquery:"taken_at"`
	SellerID        string    `bigquery:"seller_id"`
	StoreName       string    `bigquery:"store_name"`
	EarningsCents   int64     `bigquery:"earnings_cents"`
	CommissionCents int64     `bigquery:"commission_cents"`
	OrdersCount     int64     `bigquery:"orders_count"`
}

// SnapshotTables describes the two destination tables for the exporter.
func SnapshotTables(financeTable, payoutTable string) []bigquery.TableSpec {
	return []bigquery.TableSpec{
		{Name: financeTable, Row: FinanceSnapshotRow{}, PartitionField: "taken_at"},
		{Name: payoutTable, Row: PayoutSnapshotRow{}, PartitionField: "taken_at"},
	}
}

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

// RetryPolicy controls how many times BigQuery inserts are retried.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaximumBackoff time.Duration
}

type ExporterConfig struct {
	FinanceTable string
	PayoutTable  string
	Retry        RetryPolicy
}

// Exporter copies the current finance aggregates into BigQuery. Bank details
// never leave the primary database.
type Exporter struct {
	finance      Service
	client       tableInserter
	financeTable string
	payoutTable  string
	retry        RetryPolicy
	now          func() time.Time
}

func NewExporter(finance Service, client tableInserter, cfg ExporterConfig) (*Exporter, error) {
	if finance == nil {
		return nil, errors.New("finance service required")
	}
	if client == nil {
		return nil, errors.New("bigquery client required")
	}
	financeTable := strings.TrimSpace(cfg.FinanceTable)
	if financeTable == "" {
		return nil, errors.New("finance snapshot table is required")
	}
	payoutTable := strings.TrimSpace(cfg.PayoutTable)
	if payoutTable == "" {
		return nil, errors.New("payout snapshot table is required")
	}
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = defaultMaxAttempts
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = defaultInitialBackoff
	}
	if retry.MaximumBackoff < retry.InitialBackoff {
		retry.MaximumBackoff = max(defaultMaximumBackoff, retry.InitialBackoff)
	}
	return &Exporter{
		finance:      finance,
		client:       client,
		financeTable: financeTable,
		payoutTable:  payoutTable,
		retry:        retry,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Export writes one finance row and one row per seller under a shared snapshot id.
func (e *Exporter) Export(ctx context.Context) (string, error) {
	stats, err := e.finance.GetFinanceStats(ctx)
	if err != nil {
		return "", err
	}
	payouts, err := e.finance.GetPayouts(ctx)
	if err != nil {
		return "", err
	}

	snapshotID := uuid.NewString()
	takenAt := e.now()
	financeRow := &FinanceSnapshotRow{
		SnapshotID:           snapshotID,
		TakenAt:              takenAt,
		PlatformRevenueCents: checkout.MinorUnits(stats.TotalPlatformRevenue),
		SellerEarningsCents:  checkout.MinorUnits(stats.TotalSellerEarnings),
		GMVCents:             checkout.MinorUnits(stats.TotalGMV),
		PendingPayoutsCents:  checkout.MinorUnits(stats.PendingPayouts),
		OrdersCount:          stats.OrdersCount,
	}
	if err := e.insertWithRetry(ctx, e.financeTable, []any{financeRow}); err != nil {
		return "", err
	}

	rows := make([]any, 0, len(payouts))
	for _, payout := range payouts {
		rows = append(rows, &PayoutSnapshotRow{
			SnapshotID:      snapshotID,
			TakenAt:         takenAt,
			SellerID:        payout.SellerID.String(),
			StoreName:       payout.StoreName,
			EarningsCents:   checkout.MinorUnits(payout.TotalEarnings),
			CommissionCents: checkout.MinorUnits(payout.TotalCommission),
			OrdersCount:     payout.OrdersCount,
		})
	}
	if err := e.insertWithRetry(ctx, e.payoutTable, rows); err != nil {
		return "", err
	}
	return snapshotID, nil
}

func (e *Exporter) insertWithRetry(ctx context.Context, table string, rows []any) error {
	if len(rows) == 0 {
		return nil
	}

	attempts := 0
	backoff := e.retry.InitialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := e.client.InsertRows(ctx, table, rows)
		if err == nil {
			return nil
		}

		attempts++
		if attempts >= e.retry.MaxAttempts || !bigquery.IsRetryable(err) {
			return fmt.Errorf("insert %s rows: %w", table, err)
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = min(backoff*2, e.retry.MaximumBackoff)
	}
}
