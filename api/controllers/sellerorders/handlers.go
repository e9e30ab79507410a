package sellerorders

import (
	"net/http"

	"github.com/angelmondragon/marketplace-backend/api/controllers"
	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	"github.com/angelmondragon/marketplace-backend/internal/sellerorders"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type updateStatusRequest struct {
	Status enums.OrderStatus `json:"status" validate:"required,enum"`
	Note   string            `json:"note,omitempty" validate:"omitempty,max=500"`
}

func currentSeller(r *http.Request) (*models.Seller, error) {
	seller, ok := middleware.SellerFromContext(r.Context())
	if !ok || seller == nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "approved seller account required")
	}
	return seller, nil
}

// SellerOrderList returns orders containing the caller's items, projected to those items.
func SellerOrderList(svc sellerorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, err := currentSeller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status *enums.OrderStatus
		if raw := validators.OptionalQuery(r, "status"); raw != nil {
			parsed, err := enums.ParseOrderStatus(*raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter").
					WithDetails(map[string]any{"allowed": enums.OrderStatuses()}))
				return
			}
			status = &parsed
		}
		list, err := svc.ListSellerOrders(r.Context(), seller.ID, status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func SellerOrderDetail(svc sellerorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, err := currentSeller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.GetSellerOrderByID(r.Context(), seller.ID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

// SellerOrderUpdateStatus moves an order the seller has items in along the
// seller whitelist (processing, shipped).
func SellerOrderUpdateStatus(svc sellerorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, err := currentSeller(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		userID, err := controllers.RequireUser(r)
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
		order, err := svc.UpdateOrderStatusSeller(r.Context(), sellerorders.SellerRef{ID: seller.ID, UserID: userID}, orderID, body.Status, body.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
