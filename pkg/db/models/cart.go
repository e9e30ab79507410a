package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Cart is the single mutable basket a buyer owns.
type Cart struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	Items     []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cart) BeforeCreate(*gorm.DB) error {
	assignID(&c.ID)
	return nil
}

// CartItem snapshots product data at add time; later catalog edits do not change it.
type CartItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	CartID    uuid.UUID       `gorm:"column:cart_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_product"`
	ProductID uuid.UUID       `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_cart_items_cart_product"`
	SellerID  uuid.UUID       `gorm:"column:seller_id;type:uuid;not null"`
	Name      string          `gorm:"column:name;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Image     *string         `gorm:"column:image"`
	Quantity  int             `gorm:"column:quantity;not null"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *CartItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}
