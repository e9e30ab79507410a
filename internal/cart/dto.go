package cart

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
)

// CartItemDTO is one cart line with its derived subtotal.
type CartItemDTO struct {
	ProductID uuid.UUID       `json:"product_id"`
	SellerID  uuid.UUID       `json:"seller_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Image     *string         `json:"image,omitempty"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// CartDTO is the buyer cart. Totals are derived on every read and never stored.
type CartDTO struct {
	ID         *uuid.UUID      `json:"id,omitempty"`
	Items      []CartItemDTO   `json:"items"`
	TotalItems int             `json:"total_items"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

// NewCartDTO derives totals from the persisted lines. A nil cart is an empty cart.
func NewCartDTO(cart *models.Cart, items []models.CartItem) *CartDTO {
	dto := &CartDTO{Items: make([]CartItemDTO, 0, len(items)), TotalPrice: decimal.Zero}
	if cart != nil {
		id := cart.ID
		dto.ID = &id
	}
	for _, item := range items {
		subtotal := item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		dto.Items = append(dto.Items, CartItemDTO{
			ProductID: item.ProductID,
			SellerID:  item.SellerID,
			Name:      item.Name,
			Price:     item.Price,
			Image:     item.Image,
			Quantity:  item.Quantity,
			Subtotal:  subtotal,
		})
		dto.TotalItems += item.Quantity
		dto.TotalPrice = dto.TotalPrice.Add(subtotal)
	}
	return dto
}
