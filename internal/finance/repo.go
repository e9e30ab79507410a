package finance

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Repository aggregates order items of payment-confirmed orders.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

type statsRow struct {
	PlatformRevenue decimal.Decimal
	SellerEarnings  decimal.Decimal
	GMV             decimal.Decimal
	PendingPayouts  decimal.Decimal
	OrdersCount     int64
}

type payoutRow struct {
	SellerID        uuid.UUID
	StoreName       string
	BankDetails     types.BankDetails
	TotalEarnings   decimal.Decimal
	TotalCommission decimal.Decimal
	OrdersCount     int64
}

func (r *Repository) confirmedItems(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Table("order_items AS oi").
		Joins("JOIN orders o ON o.id = oi.order_id").
		Where("o.status IN ?", enums.PaymentConfirmedOrderStatuses())
}

func (r *Repository) Stats(ctx context.Context) (statsRow, error) {
	var row statsRow
	err := r.confirmedItems(ctx).
		Select(`COALESCE(SUM(oi.commission_amount), 0) AS platform_revenue,
			COALESCE(SUM(oi.seller_earnings), 0) AS seller_earnings,
			COALESCE(SUM(oi.item_total), 0) AS gmv,
			COALESCE(SUM(CASE WHEN o.status = ? THEN oi.seller_earnings ELSE 0 END), 0) AS pending_payouts,
			COUNT(DISTINCT o.id) AS orders_count`, enums.OrderStatusDelivered).
		Scan(&row).Error
	return row, err
}

func (r *Repository) Payouts(ctx context.Context) ([]payoutRow, error) {
	var rows []payoutRow
	err := r.confirmedItems(ctx).
		Joins("JOIN sellers s ON s.id = oi.seller_id").
		Select(`oi.seller_id AS seller_id,
			s.store_name AS store_name,
			s.bank_details AS bank_details,
			COALESCE(SUM(oi.seller_earnings), 0) AS total_earnings,
			COALESCE(SUM(oi.commission_amount), 0) AS total_commission,
			COUNT(DISTINCT o.id) AS orders_count`).
		Group("oi.seller_id, s.store_name, s.bank_details").
		Order("total_earnings DESC").
		Order("oi.seller_id ASC").
		Scan(&rows).Error
	return rows, err
}
