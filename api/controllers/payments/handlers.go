package payments

import (
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	paymentsvc "github.com/angelmondragon/marketplace-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// SignatureHeader carries the hex HMAC of the raw webhook body.
const SignatureHeader = "X-Webhook-Signature"

const maxWebhookBytes = 1 << 20

type orderRefRequest struct {
	OrderID uuid.UUID `json:"order_id" validate:"required"`
	Email   string    `json:"email,omitempty" validate:"omitempty,email"`
}

type verifyRequest struct {
	OrderID          uuid.UUID `json:"order_id" validate:"required"`
	Email            string    `json:"email,omitempty" validate:"omitempty,email"`
	GatewayOrderID   string    `json:"gateway_order_id" validate:"required"`
	GatewayPaymentID string    `json:"gateway_payment_id" validate:"required"`
	Signature        string    `json:"signature" validate:"required"`
	Method           string    `json:"method,omitempty" validate:"omitempty,max=50"`
}

// PaymentCreateOrder creates (or returns the existing) provider intent for an order.
func PaymentCreateOrder(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body orderRefRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := controllers.OrderActor(r, body.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := svc.CreatePaymentIntent(r.Context(), body.OrderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, intent)
	}
}

func PaymentVerify(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body verifyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := controllers.OrderActor(r, body.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.VerifyPayment(r.Context(), paymentsvc.VerifyInput{
			OrderID:          body.OrderID,
			GatewayOrderID:   body.GatewayOrderID,
			GatewayPaymentID: body.GatewayPaymentID,
			Signature:        body.Signature,
			Method:           body.Method,
		}, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// PaymentRetry opens a fresh intent for an unpaid order.
func PaymentRetry(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body orderRefRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := controllers.OrderActor(r, body.Email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		intent, err := svc.RetryPayment(r.Context(), body.OrderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, intent)
	}
}

// PaymentWebhook acknowledges every delivery. Failures are logged so the
// provider does not retry events this service already rejected.
func PaymentWebhook(svc paymentsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
		if err != nil {
			logWebhookError(logg, r, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
		} else if err := svc.HandleWebhook(ctx, payload, r.Header.Get(SignatureHeader)); err != nil {
			logWebhookError(logg, r, err)
		}
		responses.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
	}
}

func logWebhookError(logg *logger.Logger, r *http.Request, err error) {
	if logg == nil {
		return
	}
	logg.Error(r.Context(), "payments.webhook.failed", err)
}
