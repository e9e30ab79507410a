package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository defines persistence operations for orders, items and history.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	AppendHistory(ctx context.Context, entry *models.OrderStatusHistory) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (*models.Order, error)
	FindByGatewayOrderIDForUpdate(ctx context.Context, gatewayOrderID string) (*models.Order, error)
	SupersedeIntent(ctx context.Context, intent *models.PaymentIntent) error
	UpdateFields(ctx context.Context, id uuid.UUID, updates map[string]any) error
	ListByBuyer(ctx context.Context, buyerID uuid.UUID, params pagination.Params) ([]models.Order, int64, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) ([]models.Order, int64, error)
	FindStaleCreated(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// ListFilters narrows admin order listings.
type ListFilters struct {
	Status *enums.OrderStatus
}
