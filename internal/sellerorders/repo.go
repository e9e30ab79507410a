package sellerorders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository reads orders through a single seller's items.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func sellerItems(sellerID uuid.UUID) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("seller_id = ?", sellerID).Order("created_at ASC, id ASC")
	}
}

func (r *Repository) containing(ctx context.Context, sellerID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("EXISTS (SELECT 1 FROM order_items oi WHERE oi.order_id = orders.id AND oi.seller_id = ?)", sellerID)
}

// List returns orders holding at least one of the seller's items, newest first,
// with Items narrowed to that seller.
func (r *Repository) List(ctx context.Context, sellerID uuid.UUID, status *enums.OrderStatus, params pagination.Params) ([]models.Order, int64, error) {
	query := r.containing(ctx, sellerID)
	if status != nil {
		query = query.Where("orders.status = ?", *status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Order
	err := query.
		Preload("Items", sellerItems(sellerID)).
		Order("orders.created_at DESC").
		Order("orders.id DESC").
		Offset(params.Offset()).
		Limit(params.Normalize().Limit).
		Find(&rows).Error
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

// Find loads one order with the seller's items and the status history.
func (r *Repository) Find(ctx context.Context, sellerID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.containing(ctx, sellerID).
		Preload("Items", sellerItems(sellerID)).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		First(&order, "orders.id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// HasItems reports whether the order contains any of the seller's items.
func (r *Repository) HasItems(ctx context.Context, sellerID, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("order_id = ? AND seller_id = ?", orderID, sellerID).
		Count(&count).Error
	return count > 0, err
}
