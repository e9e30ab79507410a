package orders

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	ordersvc "github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/checkout"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type createOrderRequest struct {
	ShippingAddress types.ShippingAddress `json:"shipping_address" validate:"required"`
	Notes           *string               `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type guestLine struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,min=1"`
}

type createGuestOrderRequest struct {
	Items           []guestLine           `json:"items" validate:"required,min=1,dive"`
	ShippingAddress types.ShippingAddress `json:"shipping_address" validate:"required"`
	GuestInfo       *types.GuestInfo      `json:"guest_info" validate:"required"`
	Notes           *string               `json:"notes,omitempty" validate:"omitempty,max=500"`
}

type cancelOrderRequest struct {
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Note  string `json:"note,omitempty" validate:"omitempty,max=500"`
}

type updateStatusRequest struct {
	Status enums.OrderStatus `json:"status" validate:"required,enum"`
	Note   string            `json:"note,omitempty" validate:"omitempty,max=500"`
}

// OrderCreate turns the caller's cart into a single pending order.
func OrderCreate(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := controllers.RequireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body createOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CreateOrder(r.Context(), buyerID, ordersvc.CreateOrderInput{
			ShippingAddress: body.ShippingAddress,
			Notes:           body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// OrderGuestCreate places an order from explicit lines without an account.
func OrderGuestCreate(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createGuestOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		lines, err := guestLines(body.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CreateGuestOrder(r.Context(), ordersvc.CreateGuestOrderInput{
			Items:           lines,
			ShippingAddress: body.ShippingAddress,
			GuestInfo:       body.GuestInfo,
			Notes:           body.Notes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

// OrderTrack looks a guest order up by number and email. Mismatches read as not found.
func OrderTrack(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderNumber := strings.TrimSpace(r.URL.Query().Get("orderNumber"))
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if orderNumber == "" || email == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "orderNumber and email are required"))
			return
		}
		order, err := svc.TrackGuestOrder(r.Context(), orderNumber, email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func OrderList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyerID, err := controllers.RequireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListBuyerOrders(r.Context(), buyerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func OrderDetail(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor, err := controllers.OrderActor(r, r.URL.Query().Get("email"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetOrder(r.Context(), orderID, actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// OrderCancel cancels a pending, confirmed or processing order. Guests prove
// ownership with the order email in the query or body.
func OrderCancel(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body cancelOrderRequest
		if r.Body != nil && r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		email := r.URL.Query().Get("email")
		if strings.TrimSpace(email) == "" {
			email = body.Email
		}
		actor, err := controllers.OrderActor(r, email)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.CancelOrder(r.Context(), orderID, actor, body.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// AdminOrderList lists every order, optionally filtered by status.
func AdminOrderList(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var filters ordersvc.ListFilters
		if raw := validators.OptionalQuery(r, "status"); raw != nil {
			status, err := enums.ParseOrderStatus(*raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"allowed": enums.OrderStatuses()}))
				return
			}
			filters.Status = &status
		}
		list, err := svc.ListOrders(r.Context(), filters, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func AdminOrderUpdateStatus(svc ordersvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := controllers.RequireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.UpdateStatusAdmin(r.Context(), adminID, orderID, body.Status, body.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func guestLines(items []guestLine) ([]checkout.LineRequest, error) {
	lines := make([]checkout.LineRequest, 0, len(items))
	for i, item := range items {
		id, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id").
				WithDetails(map[string]any{"index": i})
		}
		lines = append(lines, checkout.LineRequest{ProductID: id, Quantity: item.Quantity})
	}
	return lines, nil
}
