package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	"github.com/angelmondragon/marketplace-backend/internal/sellers"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
	"github.com/angelmondragon/marketplace-backend/pkg/types"
)

type applySellerRequest struct {
	StoreName       string                `json:"store_name" validate:"required,min=2,max=120"`
	BusinessDetails types.BusinessDetails `json:"business_details"`
	BankDetails     types.BankDetails     `json:"bank_details"`
}

func SellerApply(svc sellers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := RequireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body applySellerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		seller, err := svc.Apply(r.Context(), userID, sellers.ApplyInput{
			StoreName:       body.StoreName,
			BusinessDetails: body.BusinessDetails,
			BankDetails:     body.BankDetails,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, seller)
	}
}

func SellerMe(svc sellers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := RequireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		seller, err := svc.GetByUser(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, seller)
	}
}

func AdminSellerList(svc sellers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status *enums.SellerStatus
		if raw := validators.OptionalQuery(r, "status"); raw != nil {
			parsed, err := enums.ParseSellerStatus(*raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			status = &parsed
		}
		list, err := svc.List(r.Context(), status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// AdminSellerModerate applies approve/reject/suspend/reactivate from the path.
func AdminSellerModerate(svc sellers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adminID, err := RequireUser(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellerID, err := validators.ParseUUIDParam(r, "sellerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := sellers.ParseAction(chi.URLParam(r, "action"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown seller action"))
			return
		}
		seller, err := svc.Moderate(r.Context(), adminID, sellerID, action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, seller)
	}
}
