package sellerorders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// SellerOrderDTO is an order as one seller sees it: only their items and no
// buyer contact details beyond the shipping address.
type SellerOrderDTO struct {
	ID              uuid.UUID                 `json:"id"`
	OrderNumber     string                    `json:"order_number"`
	Status          string                    `json:"status"`
	PaymentStatus   string                    `json:"payment_status"`
	ShippingAddress types.ShippingAddress     `json:"shipping_address"`
	Notes           *string                   `json:"notes,omitempty"`
	Items           []orders.OrderItemDTO     `json:"items"`
	SellerTotal     decimal.Decimal           `json:"seller_total"`
	SellerEarnings  decimal.Decimal           `json:"seller_earnings"`
	StatusHistory   []orders.StatusHistoryDTO `json:"status_history,omitempty"`
	ShippedAt       *time.Time                `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time                `json:"delivered_at,omitempty"`
	CreatedAt       time.Time                 `json:"created_at"`
}

type SellerOrderList struct {
	Orders     []SellerOrderDTO `json:"orders"`
	Pagination pagination.Meta  `json:"pagination"`
}

// NewSellerOrderDTO expects order.Items to hold only the seller's items.
func NewSellerOrderDTO(order *models.Order) SellerOrderDTO {
	total := decimal.Zero
	earnings := decimal.Zero
	for _, item := range order.Items {
		total = total.Add(item.ItemTotal)
		earnings = earnings.Add(item.SellerEarnings)
	}
	dto := SellerOrderDTO{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		Status:          string(order.Status),
		PaymentStatus:   string(order.PaymentStatus),
		ShippingAddress: order.ShippingAddress,
		Notes:           order.Notes,
		Items:           orders.NewItemDTOs(order.Items),
		SellerTotal:     total,
		SellerEarnings:  earnings,
		ShippedAt:       order.ShippedAt,
		DeliveredAt:     order.DeliveredAt,
		CreatedAt:       order.CreatedAt,
	}
	for _, entry := range order.StatusHistory {
		dto.StatusHistory = append(dto.StatusHistory, orders.StatusHistoryDTO{
			Status:    string(entry.Status),
			Note:      entry.Note,
			ActorRole: string(entry.ActorRole),
			CreatedAt: entry.CreatedAt,
		})
	}
	return dto
}
