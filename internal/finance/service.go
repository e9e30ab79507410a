package finance

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Stats summarises money flow across paid, processing, shipped and delivered orders.
type Stats struct {
	TotalPlatformRevenue decimal.Decimal `json:"total_platform_revenue"`
	TotalSellerEarnings  decimal.Decimal `json:"total_seller_earnings"`
	TotalGMV             decimal.Decimal `json:"total_gmv"`
	PendingPayouts       decimal.Decimal `json:"pending_payouts"`
	OrdersCount          int64           `json:"orders_count"`
}

// Payout is what the platform owes one seller.
type Payout struct {
	SellerID        uuid.UUID         `json:"seller_id"`
	StoreName       string            `json:"store_name"`
	BankDetails     types.BankDetails `json:"bank_details"`
	TotalEarnings   decimal.Decimal   `json:"total_earnings"`
	TotalCommission decimal.Decimal   `json:"total_commission"`
	OrdersCount     int64             `json:"orders_count"`
}

// Service is read-only.
type Service interface {
	GetFinanceStats(ctx context.Context) (*Stats, error)
	GetPayouts(ctx context.Context) ([]Payout, error)
}

type service struct {
	repo *Repository
}

func NewService(repo *Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("finance repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetFinanceStats(ctx context.Context) (*Stats, error) {
	row, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate finance stats")
	}
	return &Stats{
		TotalPlatformRevenue: row.PlatformRevenue.Round(2),
		TotalSellerEarnings:  row.SellerEarnings.Round(2),
		TotalGMV:             row.GMV.Round(2),
		PendingPayouts:       row.PendingPayouts.Round(2),
		OrdersCount:          row.OrdersCount,
	}, nil
}

func (s *service) GetPayouts(ctx context.Context) ([]Payout, error) {
	rows, err := s.repo.Payouts(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "aggregate payouts")
	}
	out := make([]Payout, 0, len(rows))
	for _, row := range rows {
		out = append(out, Payout{
			SellerID:        row.SellerID,
			StoreName:       row.StoreName,
			BankDetails:     row.BankDetails,
			TotalEarnings:   row.TotalEarnings.Round(2),
			TotalCommission: row.TotalCommission.Round(2),
			OrdersCount:     row.OrdersCount,
		})
	}
	return out, nil
}
