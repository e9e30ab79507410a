package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/checkout/reservation"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/metrics"
	"github.com/angelmondragon/marketplace-backend/pkg/outbox"
)

type edge struct {
	from enums.OrderStatus
	to   enums.OrderStatus
}

var sellerEdges = map[edge]bool{
	{enums.OrderStatusPaid, enums.OrderStatusProcessing}:    true,
	{enums.OrderStatusProcessing, enums.OrderStatusShipped}: true,
}

var adminDenied = map[edge]bool{
	{enums.OrderStatusDelivered, enums.OrderStatusCreated}:    true,
	{enums.OrderStatusDelivered, enums.OrderStatusPaid}:       true,
	{enums.OrderStatusDelivered, enums.OrderStatusProcessing}: true,
	{enums.OrderStatusProcessing, enums.OrderStatusCancelled}: true,
	{enums.OrderStatusShipped, enums.OrderStatusCancelled}:    true,
	{enums.OrderStatusDelivered, enums.OrderStatusCancelled}:  true,
	{enums.OrderStatusCreated, enums.OrderStatusRefunded}:     true,
}

var systemEdges = map[edge]bool{
	{enums.OrderStatusCreated, enums.OrderStatusPaid}:        true,
	{enums.OrderStatusCreated, enums.OrderStatusCancelled}:   true,
	{enums.OrderStatusCreated, enums.OrderStatusRefunded}:    true,
	{enums.OrderStatusPaid, enums.OrderStatusRefunded}:       true,
	{enums.OrderStatusProcessing, enums.OrderStatusRefunded}: true,
	{enums.OrderStatusShipped, enums.OrderStatusRefunded}:    true,
	{enums.OrderStatusDelivered, enums.OrderStatusRefunded}:  true,
	{enums.OrderStatusCancelled, enums.OrderStatusRefunded}:  true,
}

// owesGoods lists the statuses where the order's stock stays taken.
var owesGoods = map[enums.OrderStatus]bool{
	enums.OrderStatusCreated:    true,
	enums.OrderStatusPaid:       true,
	enums.OrderStatusProcessing: true,
	enums.OrderStatusShipped:    true,
	enums.OrderStatusDelivered:  true,
}

// CanTransition reports whether role may move an order from one status to another.
func CanTransition(role enums.ActorRole, from, to enums.OrderStatus) error {
	if !to.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown order status %q", to)
	}
	if from == to {
		return pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is already %s", to)
	}

	allowed := false
	switch role {
	case enums.ActorBuyer:
		allowed = to == enums.OrderStatusCancelled && from.IsCancellable()
	case enums.ActorSeller:
		allowed = sellerEdges[edge{from, to}]
	case enums.ActorAdmin:
		allowed = !adminDenied[edge{from, to}]
	case enums.ActorSystem:
		allowed = systemEdges[edge{from, to}]
	}
	if !allowed {
		return pkgerrors.InvalidTransition(from, to)
	}
	return nil
}

// TransitionInput describes one status change.
type TransitionInput struct {
	To    enums.OrderStatus
	Actor Actor
	Note  string
	// Rules selects whose transition rules apply; defaults to Actor.Role.
	Rules enums.ActorRole
	// Fields are extra order columns written with the status change.
	Fields map[string]any
	// Event overrides the outbox event type derived from the target status.
	Event enums.OutboxEventType
}

// Transitioner applies validated status changes inside a caller-owned transaction.
// Every change appends history, stamps the matching timestamp, keeps stock in
// step with cancellation and emits an outbox event.
type Transitioner struct {
	repo    Repository
	outbox  outbox.Emitter
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// NewTransitioner builds a Transitioner. metrics may be nil.
func NewTransitioner(repo Repository, emitter outbox.Emitter, m *metrics.OrderMetrics, now func() time.Time) (*Transitioner, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Transitioner{repo: repo, outbox: emitter, metrics: m, now: now}, nil
}

// Apply validates and persists the transition on an order loaded under lock in tx.
func (t *Transitioner) Apply(ctx context.Context, tx *gorm.DB, order *models.Order, input TransitionInput) error {
	from := order.Status
	rules := input.Rules
	if rules == "" {
		rules = input.Actor.Role
	}
	if err := CanTransition(rules, from, input.To); err != nil {
		return err
	}

	now := t.now()
	updates := map[string]any{"status": input.To, "updated_at": now}
	for key, value := range input.Fields {
		updates[key] = value
	}
	switch input.To {
	case enums.OrderStatusShipped:
		updates["shipped_at"] = now
		order.ShippedAt = &now
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = now
		order.DeliveredAt = &now
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = now
		order.CancelledAt = &now
	case enums.OrderStatusRefunded:
		if order.PaymentStatus == enums.PaymentStatusPaid {
			if _, set := updates["payment_status"]; !set {
				updates["payment_status"] = enums.PaymentStatusRefunded
			}
		}
	}

	switch {
	case input.To == enums.OrderStatusCancelled:
		if err := reservation.ReleaseInventory(ctx, tx, order.Items); err != nil {
			return err
		}
	case from == enums.OrderStatusCancelled && owesGoods[input.To]:
		// reopening a cancelled order takes its stock back
		if _, err := reservation.ReserveInventory(ctx, tx, reservationRequests(order.Items)); err != nil {
			return err
		}
		updates["cancelled_at"] = nil
		order.CancelledAt = nil
	}

	repo := t.repo.WithTx(tx)
	if err := repo.UpdateFields(ctx, order.ID, updates); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}

	note := strings.TrimSpace(input.Note)
	if note == "" {
		note = fmt.Sprintf("Status changed from %s to %s", from, input.To)
	}
	entry := &models.OrderStatusHistory{
		OrderID:   order.ID,
		Status:    input.To,
		Note:      note,
		ActorRole: input.Actor.Role,
		ActorID:   input.Actor.UserID,
	}
	if err := repo.AppendHistory(ctx, entry); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append status history")
	}

	order.Status = input.To
	order.UpdatedAt = now
	applyFields(order, updates)
	order.StatusHistory = append(order.StatusHistory, *entry)

	event := input.Event
	if event == "" {
		event = eventForStatus(input.To)
	}
	err := t.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         input.Actor.outboxRef(),
		OccurredAt:    now,
		Data: map[string]any{
			"order_id":     order.ID,
			"order_number": order.OrderNumber,
			"from":         from,
			"to":           input.To,
			"note":         note,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit status event")
	}

	t.metrics.Transition(string(input.To), string(input.Actor.Role))
	return nil
}

func eventForStatus(status enums.OrderStatus) enums.OutboxEventType {
	switch status {
	case enums.OrderStatusPaid:
		return enums.EventOrderPaid
	case enums.OrderStatusCancelled:
		return enums.EventOrderCancelled
	case enums.OrderStatusRefunded:
		return enums.EventOrderRefunded
	}
	return enums.EventOrderStatusChanged
}

func reservationRequests(items []models.OrderItem) []reservation.InventoryReservationRequest {
	requests := make([]reservation.InventoryReservationRequest, 0, len(items))
	for _, item := range items {
		requests = append(requests, reservation.InventoryReservationRequest{ProductID: item.ProductID, Qty: item.Quantity})
	}
	return requests
}

// applyFields mirrors written payment columns onto the in-memory order.
func applyFields(order *models.Order, updates map[string]any) {
	for key, value := range updates {
		switch key {
		case "payment_status":
			if v, ok := value.(enums.PaymentStatus); ok {
				order.PaymentStatus = v
			}
		case "gateway_order_id":
			if v, ok := value.(*string); ok {
				order.GatewayOrderID = v
			}
		case "payment_attempts":
			if v, ok := value.(int); ok {
				order.PaymentAttempts = v
			}
		case "gateway_payment_id":
			if v, ok := value.(*string); ok {
				order.GatewayPaymentID = v
			}
		case "payment_signature":
			if v, ok := value.(*string); ok {
				order.PaymentSignature = v
			}
		case "payment_method":
			if v, ok := value.(*string); ok {
				order.PaymentMethod = v
			}
		case "paid_at":
			if v, ok := value.(*time.Time); ok {
				order.PaidAt = v
			}
		}
	}
}
