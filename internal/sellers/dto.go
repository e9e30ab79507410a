package sellers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// SellerDTO is the seller representation returned to the owner and admins.
type SellerDTO struct {
	ID              uuid.UUID             `json:"id"`
	UserID          uuid.UUID             `json:"user_id"`
	StoreName       string                `json:"store_name"`
	BusinessDetails types.BusinessDetails `json:"business_details"`
	BankDetails     types.BankDetails     `json:"bank_details"`
	CommissionRate  decimal.Decimal       `json:"commission_rate"`
	Status          string                `json:"status"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// SellerListResult is a page of sellers for the admin console.
type SellerListResult struct {
	Sellers    []SellerDTO     `json:"sellers"`
	Pagination pagination.Meta `json:"pagination"`
}

// FromModel maps the persisted seller into its DTO.
func FromModel(seller *models.Seller) *SellerDTO {
	return &SellerDTO{
		ID:              seller.ID,
		UserID:          seller.UserID,
		StoreName:       seller.StoreName,
		BusinessDetails: seller.BusinessDetails,
		BankDetails:     seller.BankDetails,
		CommissionRate:  seller.CommissionRate,
		Status:          string(seller.Status),
		CreatedAt:       seller.CreatedAt,
		UpdatedAt:       seller.UpdatedAt,
	}
}
