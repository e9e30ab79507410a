package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

// Order is the durable record of a checkout. After creation only the status,
// payment fields and history change.
type Order struct {
	ID              uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber     string                `gorm:"column:order_number;not null;uniqueIndex"`
	BuyerID         *uuid.UUID            `gorm:"column:buyer_id;type:uuid;index"`
	GuestInfo       *types.GuestInfo      `gorm:"column:guest_info;type:jsonb"`
	ShippingAddress types.ShippingAddress `gorm:"column:shipping_address;type:jsonb;not null"`
	Notes           *string               `gorm:"column:notes"`

	ItemsTotal   decimal.Decimal `gorm:"column:items_total;type:numeric(12,2);not null"`
	ShippingCost decimal.Decimal `gorm:"column:shipping_cost;type:numeric(12,2);not null"`
	TaxAmount    decimal.Decimal `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	TotalAmount  decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`

	GatewayOrderID   *string             `gorm:"column:gateway_order_id;index"`
	GatewayPaymentID *string             `gorm:"column:gateway_payment_id"`
	PaymentSignature *string             `gorm:"column:payment_signature"`
	PaymentMethod    *string             `gorm:"column:payment_method"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:text;not null"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	PaymentAttempts  int                 `gorm:"column:payment_attempts;not null"`

	Status      enums.OrderStatus `gorm:"column:status;type:text;not null;index"`
	ShippedAt   *time.Time        `gorm:"column:shipped_at"`
	DeliveredAt *time.Time        `gorm:"column:delivered_at"`
	CancelledAt *time.Time        `gorm:"column:cancelled_at"`

	Items         []OrderItem          `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory []OrderStatusHistory `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	assignID(&o.ID)
	return nil
}

// IsGuest reports whether the order was placed without an account.
func (o *Order) IsGuest() bool {
	return o != nil && o.BuyerID == nil
}

// OrderItem is an immutable line snapshot including the commission split.
type OrderItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null"`
	SellerID         uuid.UUID       `gorm:"column:seller_id;type:uuid;not null;index"`
	Name             string          `gorm:"column:name;not null"`
	Price            decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Image            *string         `gorm:"column:image"`
	Quantity         int             `gorm:"column:quantity;not null"`
	ItemTotal        decimal.Decimal `gorm:"column:item_total;type:numeric(12,2);not null"`
	CommissionRate   decimal.Decimal `gorm:"column:commission_rate;type:numeric(5,2);not null"`
	CommissionAmount decimal.Decimal `gorm:"column:commission_amount;type:numeric(12,2);not null"`
	SellerEarnings   decimal.Decimal `gorm:"column:seller_earnings;type:numeric(12,2);not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	assignID(&i.ID)
	return nil
}

// OrderStatusHistory is one append-only audit entry.
type OrderStatusHistory struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	Note      string            `gorm:"column:note;not null"`
	ActorRole enums.ActorRole   `gorm:"column:actor_role;type:text;not null"`
	ActorID   *uuid.UUID        `gorm:"column:actor_id;type:uuid"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (OrderStatusHistory) TableName() string {
	return "order_status_history"
}

func (h *OrderStatusHistory) BeforeCreate(*gorm.DB) error {
	assignID(&h.ID)
	return nil
}

// PaymentIntent remembers a gateway order id replaced by a payment retry so
// late notifications for it still resolve to the order.
type PaymentIntent struct {
	GatewayOrderID string    `gorm:"column:gateway_order_id;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Attempt        int       `gorm:"column:attempt;not null"`
	SupersededAt   time.Time `gorm:"column:superseded_at;not null"`
}

func (PaymentIntent) TableName() string {
	return "order_payment_intents"
}
