package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// ProductDTO represents the product payload returned to clients.
type ProductDTO struct {
	ID          uuid.UUID       `json:"id"`
	SellerID    uuid.UUID       `json:"seller_id"`
	Name        string          `json:"name"`
	Description *string         `json:"description,omitempty"`
	Image       *string         `json:"image,omitempty"`
	Price       decimal.Decimal `json:"price"`
	MRP         decimal.Decimal `json:"mrp"`
	Stock       int             `json:"stock"`
	Status      string          `json:"status"`
	Archived    bool            `json:"archived"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ProductListResult is a page of public products.
type ProductListResult struct {
	Products   []ProductDTO    `json:"products"`
	Pagination pagination.Meta `json:"pagination"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(product *models.Product) *ProductDTO {
	return &ProductDTO{
		ID:          product.ID,
		SellerID:    product.SellerID,
		Name:        product.Name,
		Description: product.Description,
		Image:       product.Image,
		Price:       product.Price,
		MRP:         product.MRP,
		Stock:       product.Stock,
		Status:      string(product.Status),
		Archived:    product.Archived,
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
}

func toDTOs(rows []models.Product) []ProductDTO {
	out := make([]ProductDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewProductDTO(&rows[i]))
	}
	return out
}
