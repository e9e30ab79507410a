package payments

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// IntentDTO is returned to the client that will complete the payment.
type IntentDTO struct {
	OrderID        uuid.UUID       `json:"order_id"`
	OrderNumber    string          `json:"order_number"`
	GatewayOrderID string          `json:"gateway_order_id"`
	Amount         int64           `json:"amount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Currency       string          `json:"currency"`
	Attempt        int             `json:"attempt"`
}

// VerifyInput carries the provider callback values the client relays.
type VerifyInput struct {
	OrderID          uuid.UUID
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Method           string
}

// WebhookEvent is the provider notification envelope.
type WebhookEvent struct {
	ID      string         `json:"id"`
	Event   string         `json:"event"`
	Payload WebhookPayload `json:"payload"`
}

type WebhookPayload struct {
	Payment *PaymentEntity `json:"payment,omitempty"`
	Refund  *RefundEntity  `json:"refund,omitempty"`
}

type PaymentEntity struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Method           string `json:"method,omitempty"`
	ErrorCode        string `json:"error_code,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

type RefundEntity struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
}

func (e WebhookEvent) dedupeKey(eventType string) string {
	if e.ID != "" {
		return e.ID
	}
	key := eventType
	if e.Payload.Payment != nil {
		key += ":" + e.Payload.Payment.ID
	}
	if e.Payload.Refund != nil {
		key += ":" + e.Payload.Refund.ID
	}
	return key
}
