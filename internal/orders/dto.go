package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// OrderItemDTO is an immutable line snapshot.
type OrderItemDTO struct {
	ID               uuid.UUID       `json:"id"`
	ProductID        uuid.UUID       `json:"product_id"`
	SellerID         uuid.UUID       `json:"seller_id"`
	Name             string          `json:"name"`
	Price            decimal.Decimal `json:"price"`
	Image            *string         `json:"image,omitempty"`
	Quantity         int             `json:"quantity"`
	ItemTotal        decimal.Decimal `json:"item_total"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	SellerEarnings   decimal.Decimal `json:"seller_earnings"`
}

// StatusHistoryDTO is one audit entry.
type StatusHistoryDTO struct {
	Status    string     `json:"status"`
	Note      string     `json:"note"`
	ActorRole string     `json:"actor_role"`
	ActorID   *uuid.UUID `json:"actor_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// PaymentDTO exposes the non-secret payment fields.
type PaymentDTO struct {
	GatewayOrderID   *string    `json:"gateway_order_id,omitempty"`
	GatewayPaymentID *string    `json:"gateway_payment_id,omitempty"`
	Method           *string    `json:"method,omitempty"`
	Status           string     `json:"status"`
	PaidAt           *time.Time `json:"paid_at,omitempty"`
	Attempts         int        `json:"attempts"`
}

// OrderDTO is the buyer and admin view of an order.
type OrderDTO struct {
	ID              uuid.UUID             `json:"id"`
	OrderNumber     string                `json:"order_number"`
	BuyerID         *uuid.UUID            `json:"buyer_id,omitempty"`
	GuestInfo       *types.GuestInfo      `json:"guest_info,omitempty"`
	ShippingAddress types.ShippingAddress `json:"shipping_address"`
	Notes           *string               `json:"notes,omitempty"`
	Items           []OrderItemDTO        `json:"items"`
	ItemsTotal      decimal.Decimal       `json:"items_total"`
	ShippingCost    decimal.Decimal       `json:"shipping_cost"`
	TaxAmount       decimal.Decimal       `json:"tax_amount"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	Payment         PaymentDTO            `json:"payment"`
	Status          string                `json:"status"`
	StatusHistory   []StatusHistoryDTO    `json:"status_history,omitempty"`
	ShippedAt       *time.Time            `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time            `json:"delivered_at,omitempty"`
	CancelledAt     *time.Time            `json:"cancelled_at,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

// OrderList is a page of orders.
type OrderList struct {
	Orders     []OrderDTO      `json:"orders"`
	Pagination pagination.Meta `json:"pagination"`
}

// NewOrderDTO maps the persisted order into its API shape.
func NewOrderDTO(order *models.Order) *OrderDTO {
	dto := &OrderDTO{
		ID:              order.ID,
		OrderNumber:     order.OrderNumber,
		BuyerID:         order.BuyerID,
		GuestInfo:       order.GuestInfo,
		ShippingAddress: order.ShippingAddress,
		Notes:           order.Notes,
		Items:           NewItemDTOs(order.Items),
		ItemsTotal:      order.ItemsTotal,
		ShippingCost:    order.ShippingCost,
		TaxAmount:       order.TaxAmount,
		TotalAmount:     order.TotalAmount,
		Payment: PaymentDTO{
			GatewayOrderID:   order.GatewayOrderID,
			GatewayPaymentID: order.GatewayPaymentID,
			Method:           order.PaymentMethod,
			Status:           string(order.PaymentStatus),
			PaidAt:           order.PaidAt,
			Attempts:         order.PaymentAttempts,
		},
		Status:      string(order.Status),
		ShippedAt:   order.ShippedAt,
		DeliveredAt: order.DeliveredAt,
		CancelledAt: order.CancelledAt,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	for _, entry := range order.StatusHistory {
		dto.StatusHistory = append(dto.StatusHistory, StatusHistoryDTO{
			Status:    string(entry.Status),
			Note:      entry.Note,
			ActorRole: string(entry.ActorRole),
			ActorID:   entry.ActorID,
			CreatedAt: entry.CreatedAt,
		})
	}
	return dto
}

// NewItemDTOs maps order items.
func NewItemDTOs(items []models.OrderItem) []OrderItemDTO {
	out := make([]OrderItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, OrderItemDTO{
			ID:               item.ID,
			ProductID:        item.ProductID,
			SellerID:         item.SellerID,
			Name:             item.Name,
			Price:            item.Price,
			Image:            item.Image,
			Quantity:         item.Quantity,
			ItemTotal:        item.ItemTotal,
			CommissionRate:   item.CommissionRate,
			CommissionAmount: item.CommissionAmount,
			SellerEarnings:   item.SellerEarnings,
		})
	}
	return out
}

func newOrderList(rows []models.Order, params pagination.Params, total int64) *OrderList {
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewOrderDTO(&rows[i]))
	}
	return &OrderList{Orders: out, Pagination: pagination.NewMeta(params, total)}
}
