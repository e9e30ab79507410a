package payments

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

const (
	EventPaymentCaptured = "payment.captured"
	EventPaymentFailed   = "payment.failed"
	EventRefundCreated   = "refund.created"
)

// HandleWebhook applies a provider notification. Invalid signatures, unknown
// orders and events that no longer fit the order state are logged and dropped.
func (s *service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if secret := strings.TrimSpace(s.cfg.WebhookSecret); secret != "" {
		if !ValidWebhookSignature(secret, payload, signature) {
			s.metrics.Webhook("unknown", "invalid_signature")
			s.logg.Warn(ctx, "webhook signature invalid")
			return pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
		}
	}

	var event WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.metrics.Webhook("unknown", "malformed")
		s.logg.Warn(ctx, "webhook payload malformed")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook payload")
	}
	eventType := strings.ToLower(strings.TrimSpace(event.Event))
	ctx = s.logg.WithFields(ctx, map[string]any{
		"webhook_event":    eventType,
		"webhook_event_id": event.ID,
	})

	switch eventType {
	case EventPaymentCaptured, EventPaymentFailed, EventRefundCreated:
	default:
		s.metrics.Webhook(eventType, "ignored")
		s.logg.Info(ctx, "webhook event ignored")
		return nil
	}
	payment := event.Payload.Payment
	if payment == nil || strings.TrimSpace(payment.OrderID) == "" {
		s.metrics.Webhook(eventType, "malformed")
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook payment entity missing")
	}

	key := event.dedupeKey(eventType)
	if s.guard != nil {
		seen, err := s.guard.CheckAndMark(ctx, key)
		if err != nil {
			s.logg.Error(ctx, "webhook dedupe unavailable", err)
		} else if seen {
			s.metrics.Webhook(eventType, "duplicate")
			s.logg.Info(ctx, "webhook event already processed")
			return nil
		}
	}

	var err error
	switch eventType {
	case EventPaymentCaptured:
		err = s.capture(ctx, payment)
	case EventPaymentFailed:
		err = s.fail(ctx, payment)
	case EventRefundCreated:
		err = s.refund(ctx, payment, event.Payload.Refund)
	}
	if err != nil {
		if s.guard != nil {
			if forgetErr := s.guard.Forget(ctx, key); forgetErr != nil {
				s.logg.Error(ctx, "webhook dedupe reset failed", forgetErr)
			}
		}
		s.metrics.Webhook(eventType, "error")
		s.logg.Error(ctx, "webhook processing failed", err)
		return err
	}
	s.metrics.Webhook(eventType, "processed")
	return nil
}

func (s *service) capture(ctx context.Context, payment *PaymentEntity) error {
	ctx = s.logg.WithFields(ctx, map[string]any{
		"gateway_order_id":   payment.OrderID,
		"gateway_payment_id": payment.ID,
	})
	return s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByGatewayOrderIDForUpdate(ctx, payment.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Error(ctx, "captured payment for unknown gateway order", pkgerrors.New(pkgerrors.CodeNotFound, "gateway order not found"))
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		superseded := order.GatewayOrderID == nil || *order.GatewayOrderID != payment.OrderID
		if order.PaymentStatus == enums.PaymentStatusPaid {
			if order.GatewayPaymentID != nil && *order.GatewayPaymentID != strings.TrimSpace(payment.ID) {
				s.logg.Error(logCtx, "second capture for paid order", pkgerrors.New(pkgerrors.CodeConflict, "order already paid by another payment"))
			}
			return nil
		}
		if order.Status != enums.OrderStatusCreated {
			s.logg.Error(logCtx, "captured payment for order that is no longer awaiting payment", pkgerrors.Newf(pkgerrors.CodeStateConflict, "order is %s", order.Status))
			return nil
		}

		paidAt := s.now()
		fields := map[string]any{
			"payment_status": enums.PaymentStatusPaid,
			"paid_at":        &paidAt,
		}
		note := "Payment captured"
		if superseded {
			if order.GatewayOrderID != nil {
				err := s.repo.WithTx(tx).SupersedeIntent(ctx, &models.PaymentIntent{
					GatewayOrderID: *order.GatewayOrderID,
					OrderID:        order.ID,
					Attempt:        order.PaymentAttempts,
					SupersededAt:   paidAt,
				})
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "keep superseded payment intent")
				}
			}
			gatewayOrderID := payment.OrderID
			fields["gateway_order_id"] = &gatewayOrderID
			note = "Payment captured on superseded intent " + gatewayOrderID
			s.logg.Warn(logCtx, "payment captured on superseded intent")
		}
		if id := strings.TrimSpace(payment.ID); id != "" {
			fields["gateway_payment_id"] = &id
		}
		if method := strings.TrimSpace(payment.Method); method != "" {
			fields["payment_method"] = &method
		}
		return s.transitions.Apply(ctx, tx, order, orders.TransitionInput{
			To:     enums.OrderStatusPaid,
			Actor:  orders.SystemActor(),
			Note:   note,
			Fields: fields,
		})
	})
}

func (s *service) fail(ctx context.Context, payment *PaymentEntity) error {
	reason := strings.TrimSpace(payment.ErrorDescription)
	if reason == "" {
		reason = strings.TrimSpace(payment.ErrorCode)
	}
	if reason == "" {
		reason = "unknown"
	}
	return s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByGatewayOrderIDForUpdate(ctx, payment.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "webhook for unknown gateway order")
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID.String()), map[string]any{"reason": reason})
		if order.GatewayOrderID == nil || *order.GatewayOrderID != payment.OrderID {
			s.logg.Info(logCtx, "payment failure for superseded intent ignored")
			return nil
		}
		if order.PaymentStatus == enums.PaymentStatusPaid || order.PaymentStatus == enums.PaymentStatusRefunded {
			s.logg.Warn(logCtx, "payment failure reported for settled order")
			return nil
		}
		if order.PaymentStatus == enums.PaymentStatusFailed {
			return nil
		}
		s.logg.Warn(logCtx, "payment failed")
		return s.recordFailure(ctx, tx, order, "Payment failed: "+reason, reason)
	})
}

func (s *service) refund(ctx context.Context, payment *PaymentEntity, refund *RefundEntity) error {
	return s.tx.WithRetryTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByGatewayOrderIDForUpdate(ctx, payment.OrderID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.logg.Warn(ctx, "webhook for unknown gateway order")
			return nil
		}
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order.Status == enums.OrderStatusRefunded {
			return nil
		}
		note := "Refund created"
		if refund != nil && strings.TrimSpace(refund.ID) != "" {
			note += " (" + strings.TrimSpace(refund.ID) + ")"
		}
		err = s.transitions.Apply(ctx, tx, order, orders.TransitionInput{
			To:     enums.OrderStatusRefunded,
			Actor:  orders.SystemActor(),
			Note:   note,
			Fields: map[string]any{"payment_status": enums.PaymentStatusRefunded},
		})
		if pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "refund reported for order that cannot be refunded")
			return nil
		}
		return err
	})
}
