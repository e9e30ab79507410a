package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// Product is a sellable listing. Stock is only mutated by checkout and cancellation.
type Product struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SellerID    uuid.UUID           `gorm:"column:seller_id;type:uuid;not null;index"`
	Name        string              `gorm:"column:name;not null"`
	Description *string             `gorm:"column:description"`
	Image       *string             `gorm:"column:image"`
	Price       decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null"`
	MRP         decimal.Decimal     `gorm:"column:mrp;type:numeric(12,2);not null"`
	Stock       int                 `gorm:"column:stock;not null"`
	Status      enums.ProductStatus `gorm:"column:status;type:text;not null"`
	Archived    bool                `gorm:"column:archived;not null"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	assignID(&p.ID)
	return nil
}

// Purchasable reports whether the product may enter a cart or an order.
func (p *Product) Purchasable() bool {
	return p != nil && p.Status == enums.ProductStatusApproved && !p.Archived
}
