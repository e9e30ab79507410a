package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Seller is a storefront owned by a platform user. Selling rights follow Status.
type Seller struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	StoreName       string                `gorm:"column:store_name;not null;uniqueIndex"`
	BusinessDetails types.BusinessDetails `gorm:"column:business_details;type:jsonb;not null"`
	BankDetails     types.BankDetails     `gorm:"column:bank_details;type:jsonb;not null"`
	CommissionRate  decimal.Decimal       `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	Status          enums.SellerStatus    `gorm:"column:status;type:text;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Seller) BeforeCreate(*gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// CanSell reports whether the seller currently holds selling rights.
func (s *Seller) CanSell() bool {
	return s != nil && s.Status == enums.SellerStatusApproved
}
