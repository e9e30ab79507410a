package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an order repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateOrder inserts the order row only; items and history are written explicitly.
func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.withDetails(ctx).First(&order, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindForUpdate locks the order row; details are loaded after the lock is taken.
func (r *repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	if err := r.loadDetails(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error) {
	var order models.Order
	if err := r.withDetails(ctx).First(&order, "order_number = ?", orderNumber).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByGatewayOrderIDForUpdate resolves the current intent first and falls
// back to intents replaced by a payment retry.
func (r *repository) FindByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "gateway_order_id = ?", gatewayOrderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		var intent models.PaymentIntent
		if lookupErr := r.db.WithContext(ctx).First(&intent, "gateway_order_id = ?", gatewayOrderID).Error; lookupErr != nil {
			return nil, lookupErr
		}
		return r.FindForUpdate(ctx, intent.OrderID)
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadDetails(ctx, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) SupersedeIntent(ctx context.Context, intent *models.PaymentIntent) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(intent).Error
}

func (r *repository) UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("buyer_id = ?", buyerID)
	return r.page(ctx, query, params)
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	return r.page(ctx, query, params)
}

// FindStaleCreated returns ids of unpaid created orders placed before cutoff.
func (r *repository) FindStaleCreated(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("status = ? AND payment_status <> ? AND created_at < ?", enums.OrderStatusCreated, enums.PaymentStatusPaid, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *repository) page(ctx context.Context, query *gorm.DB, params pagination.Params) ([]models.Order, int64, error) {
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []models.Order
	err := query.
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Order("created_at DESC").
		Order("id DESC").
		Offset(params.Offset()).
		Limit(params.Normalize().Limit).
		Find(&rows).Error
	return rows, total, err
}

func (r *repository) withDetails(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") })
}

func (r *repository) loadDetails(ctx context.Context, order *models.Order) error {
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", order.ID).
		Order("created_at ASC, id ASC").
		Find(&order.Items).Error; err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Where("order_id = ?", order.ID).
		Order("created_at ASC, id ASC").
		Find(&order.StatusHistory).Error
}
