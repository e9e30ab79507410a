package product

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// ErrInsufficientStock is returned when a guarded decrement matches no row.
var ErrInsufficientStock = errors.New("insufficient stock")

// Repository wires together product persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *Repository) Save(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

// FindByID loads the product without locking.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindForUpdate loads the product holding a row lock until the transaction ends.
// Concurrent checkouts of the same product serialize here.
func (r *Repository) FindForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// DecrementStock removes qty units only while enough stock remains.
func (r *Repository) DecrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND stock >= ?", id, qty).
		Update("stock", gorm.Expr("stock - ?", qty))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

// IncrementStock returns qty units to the product.
func (r *Repository) IncrementStock(ctx context.Context, id uuid.UUID, qty int) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Update("stock", gorm.Expr("stock + ?", qty)).Error
}

// ListPublic returns approved, unarchived products newest first.
func (r *Repository) ListPublic(ctx context.Context, params pagination.Params) ([]models.Product, int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("status = ? AND archived = ?", enums.ProductStatusApproved, false)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Product
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset(params.Offset()).
		Limit(params.Normalize().Limit).
		Find(&rows).Error
	return rows, total, err
}

// ListBySeller returns every product the seller owns, archived included.
func (r *Repository) ListBySeller(ctx context.Context, sellerID uuid.UUID) ([]models.Product, error) {
	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
