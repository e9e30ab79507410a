package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// SeedSeller inserts a seller with the given status and commission percent.
func SeedSeller(t testing.TB, conn *gorm.DB, status enums.SellerStatus, commission string) *models.Seller {
	t.Helper()
	seller := &models.Seller{
		UserID:    uuid.New(),
		StoreName: "store-" + uuid.NewString()[:8],
		BusinessDetails: types.BusinessDetails{
			PAN:     "ABCDE1234F",
			Address: "12 Market Road",
		},
		BankDetails: types.BankDetails{
			AccountNumber: "00112233",
			IFSCCode:      "HDFC0001234",
			BankName:      "HDFC",
		},
		CommissionRate: decimal.RequireFromString(commission),
		Status:         status,
	}
	if err := conn.Create(seller).Error; err != nil {
		t.Fatalf("seed seller: %v", err)
	}
	return seller
}

// SeedProduct inserts an approved product for the seller.
func SeedProduct(t testing.TB, conn *gorm.DB, sellerID uuid.UUID, name, price string, stock int) *models.Product {
	t.Helper()
	amount := decimal.RequireFromString(price)
	product := &models.Product{
		SellerID: sellerID,
		Name:     name,
		Price:    amount,
		MRP:      amount.Add(decimal.NewFromInt(10)),
		Stock:    stock,
		Status:   enums.ProductStatusApproved,
	}
	if err := conn.Create(product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}

// ReloadProduct fetches the current persisted product row.
func ReloadProduct(t testing.TB, conn *gorm.DB, id uuid.UUID) *models.Product {
	t.Helper()
	var product models.Product
	if err := conn.First(&product, "id = ?", id).Error; err != nil {
		t.Fatalf("reload product: %v", err)
	}
	return &product
}
