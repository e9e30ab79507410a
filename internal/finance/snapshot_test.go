package finance

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/googleapi"
)

type stubFinance struct {
	stats   *Stats
	payouts []Payout
}

func (s stubFinance) GetFinanceStats(context.Context) (*Stats, error) { return s.stats, nil }
func (s stubFinance) GetPayouts(context.Context) ([]Payout, error)    { return s.payouts, nil }

type fakeInserter struct {
	responses []error
	tables    []string
	rows      [][]any
}

func (f *fakeInserter) InsertRows(_ context.Context, table string, rows []any) error {
	f.tables = append(f.tables, table)
	f.rows = append(f.rows, rows)
	if len(f.responses) == 0 {
		return nil
	}
	err := f.responses[0]
	f.responses = f.responses[1:]
	return err
}

func newExporter(t *testing.T, fake *fakeInserter) *Exporter {
	t.Helper()
	exporter, err := NewExporter(stubFinance{
		stats: &Stats{
			TotalPlatformRevenue: decimal.RequireFromString("8.03"),
			TotalSellerEarnings:  decimal.RequireFromString("122.37"),
			TotalGMV:             decimal.RequireFromString("130.40"),
			PendingPayouts:       decimal.RequireFromString("9.09"),
			OrdersCount:          3,
		},
		payouts: []Payout{
			{SellerID: uuid.New(), StoreName: "Leaf & Co", TotalEarnings: decimal.RequireFromString("95"), TotalCommission: decimal.RequireFromString("5"), OrdersCount: 1},
			{SellerID: uuid.New(), StoreName: "Brew", TotalEarnings: decimal.RequireFromString("27.37"), TotalCommission: decimal.RequireFromString("3.03"), OrdersCount: 2},
		},
	}, fake, ExporterConfig{
		FinanceTable: "finance_snapshots",
		PayoutTable:  "payout_snapshots",
		Retry:        RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: time.Millisecond},
	})
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	return exporter
}

func TestExporterWritesFinanceAndPayoutRows(t *testing.T) {
	fake := &fakeInserter{}
	exporter := newExporter(t, fake)

	id, err := exporter.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(fake.tables) != 2 || fake.tables[0] != "finance_snapshots" || fake.tables[1] != "payout_snapshots" {
		t.Fatalf("unexpected tables %v", fake.tables)
	}
	finance := fake.rows[0][0].(*FinanceSnapshotRow)
	if finance.SnapshotID != id || finance.GMVCents != 13040 || finance.PlatformRevenueCents != 803 {
		t.Fatalf("unexpected finance row %+v", finance)
	}
	if len(fake.rows[1]) != 2 {
		t.Fatalf("expected 2 payout rows, got %d", len(fake.rows[1]))
	}
	payout := fake.rows[1][1].(*PayoutSnapshotRow)
	if payout.SnapshotID != id || payout.EarningsCents != 2737 || payout.StoreName != "Brew" {
		t.Fatalf("unexpected payout row %+v", payout)
	}
}

func TestExporterRetriesTransientErrors(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusServiceUnavailable}, nil}}
	exporter := newExporter(t, fake)

	if _, err := exporter.Export(context.Background()); err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(fake.tables) != 3 {
		t.Fatalf("expected finance insert retried once, got %d calls", len(fake.tables))
	}
}

func TestExporterStopsOnPermanentErrors(t *testing.T) {
	fake := &fakeInserter{responses: []error{&googleapi.Error{Code: http.StatusBadRequest}}}
	exporter := newExporter(t, fake)

	_, err := exporter.Export(context.Background())
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected googleapi error, got %v", err)
	}
	if len(fake.tables) != 1 {
		t.Fatalf("expected no retry, got %d calls", len(fake.tables))
	}
}

func TestNewExporterValidation(t *testing.T) {
	if _, err := NewExporter(nil, &fakeInserter{}, ExporterConfig{FinanceTable: "f", PayoutTable: "p"}); err == nil {
		t.Fatal("expected missing service to fail")
	}
	if _, err := NewExporter(stubFinance{}, &fakeInserter{}, ExporterConfig{FinanceTable: " ", PayoutTable: "p"}); err == nil {
		t.Fatal("expected missing finance table to fail")
	}
}
