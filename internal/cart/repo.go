package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// Repository implements CartRepository on GORM.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a cart repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	if err := r.db.WithContext(ctx).First(&cart, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindByUserForUpdate locks the buyer's cart row. Checkout holds this lock so two
// concurrent submits of the same cart serialize and the second sees it empty.
func (r *Repository) FindByUserForUpdate(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	var cart models.Cart
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&cart, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *Repository) Create(ctx context.Context, cart *models.Cart) error {
	return r.db.WithContext(ctx).Create(cart).Error
}

func (r *Repository) ListItems(ctx context.Context, cartID uuid.UUID) ([]models.CartItem, error) {
	var items []models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&items).Error
	return items, err
}

func (r *Repository) FindItem(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		First(&item, "cart_id = ? AND product_id = ?", cartID, productID).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *Repository) CreateItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

func (r *Repository) SaveItem(ctx context.Context, item *models.CartItem) error {
	return r.db.WithContext(ctx).Save(item).Error
}

// DeleteItem removes one line and reports whether it existed.
func (r *Repository) DeleteItem(ctx context.Context, cartID, productID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		Delete(&models.CartItem{})
	return res.RowsAffected > 0, res.Error
}

// ClearItems empties the cart while keeping the cart row.
func (r *Repository) ClearItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

func (r *Repository) Touch(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("updated_at", time.Now().UTC()).Error
}
