package enums

// OutboxAggregateType names the entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateProduct OutboxAggregateType = "product"
	AggregateSeller  OutboxAggregateType = "seller"
)

var aggregateTypes = newSet("aggregate type", AggregateOrder, AggregateProduct, AggregateSeller)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.has(a) }

// OutboxEventType is the routing key published with every domain event.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order.created"
	EventOrderPaid          OutboxEventType = "order.paid"
	EventOrderStatusChanged OutboxEventType = "order.status_changed"
	EventOrderCancelled     OutboxEventType = "order.cancelled"
	EventOrderExpired       OutboxEventType = "order.expired"
	EventOrderRefunded      OutboxEventType = "order.refunded"
	EventPaymentFailed      OutboxEventType = "payment.failed"
	EventSellerStatusChange OutboxEventType = "seller.status_changed"
)

var eventTypes = newSet("event type",
	EventOrderCreated,
	EventOrderPaid,
	EventOrderStatusChanged,
	EventOrderCancelled,
	EventOrderExpired,
	EventOrderRefunded,
	EventPaymentFailed,
	EventSellerStatusChange,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.has(e) }
