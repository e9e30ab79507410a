package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// CartRepository captures persistence operations used by the cart service and checkout.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, cart *models.Cart) error
	ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error)
	FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error)
	CreateItem(ctx context.Context, item *models.CartItem) error
	SaveItem(ctx context.Context, item *models.CartItem) error
	DeleteItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error)
	ClearItems(ctx context.Context, cartID uuid.UUID) error
	Touch(ctx context.Context, cartID uuid.UUID) error
}
