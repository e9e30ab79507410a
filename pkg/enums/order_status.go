package enums

// OrderStatus tracks an order through fulfillment.
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var orderStatuses = newSet("order status",
	OrderStatusCreated,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusRefunded,
)

func (o OrderStatus) String() string { return string(o) }

func (o OrderStatus) IsValid() bool { return orderStatuses.has(o) }

func ParseOrderStatus(value string) (OrderStatus, error) {
	return orderStatuses.parse(value)
}

// OrderStatuses lists every status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return orderStatuses.all()
}

// PaymentConfirmedOrderStatuses are the statuses reached only after payment
// succeeded and that still count toward revenue.
func PaymentConfirmedOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPaid,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
	}
}

// IsCancellable reports whether an order in this status may still be cancelled.
func (o OrderStatus) IsCancellable() bool {
	switch o {
	case OrderStatusCreated, OrderStatusPaid, OrderStatusProcessing:
		return true
	}
	return false
}
