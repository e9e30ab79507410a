package sellers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Repository provides seller persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a seller repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	return &Repository{db: tx}
}

func (r *Repository) Create(ctx context.Context, seller *models.Seller) error {
	return r.db.WithContext(ctx).Create(seller).Error
}

func (r *Repository) Save(ctx context.Context, seller *models.Seller) error {
	return r.db.WithContext(ctx).Save(seller).Error
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.WithContext(ctx).First(&seller, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

func (r *Repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Seller, error) {
	var seller models.Seller
	if err := r.db.WithContext(ctx).First(&seller, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &seller, nil
}

// StoreNameTaken reports whether another seller already uses the store name.
func (r *Repository) StoreNameTaken(ctx context.Context, storeName string, exclude uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Seller{}).
		Where("LOWER(store_name) = LOWER(?) AND id <> ?", storeName, exclude).
		Count(&count).Error
	return count > 0, err
}

// List returns sellers, optionally filtered by status, newest first.
func (r *Repository) List(ctx context.Context, status *enums.SellerStatus, params pagination.Params) ([]models.Seller, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.Seller{})
	if status != nil {
		query = query.Where("status = ?", *status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Seller
	err := query.
		Order("created_at DESC").
		Offset(params.Offset()).
		Limit(params.Normalize().Limit).
		Find(&rows).Error
	return rows, total, err
}

// FindByIDs loads the requested sellers keyed by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Seller, error) {
	out := make(map[uuid.UUID]models.Seller, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Seller
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}
