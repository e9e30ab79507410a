package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/api/validators"
	products "github.com/angelmondragon/marketplace-backend/internal/products"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

type createProductRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description *string         `json:"description,omitempty" validate:"omitempty,max=5000"`
	Image       *string         `json:"image,omitempty" validate:"omitempty,url"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	MRP         decimal.Decimal `json:"mrp" validate:"gte=0"`
	Stock       int             `json:"stock" validate:"min=0"`
}

type updateProductRequest struct {
	Name        *string          `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string          `json:"description,omitempty" validate:"omitempty,max=5000"`
	Image       *string          `json:"image,omitempty" validate:"omitempty,url"`
	Price       *decimal.Decimal `json:"price,omitempty" validate:"omitempty,gte=0"`
	MRP         *decimal.Decimal `json:"mrp,omitempty" validate:"omitempty,gte=0"`
	Stock       *int             `json:"stock,omitempty" validate:"omitempty,min=0"`
}

type reviewProductRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
}

// ProductList is the public catalog: approved and not archived.
func ProductList(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePage(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListPublic(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ProductDetail(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.GetProduct(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func SellerProductList(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, ok := middleware.SellerFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "seller account required"))
			return
		}
		list, err := svc.ListSellerProducts(r.Context(), seller.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func SellerProductCreate(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, ok := middleware.SellerFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "seller account required"))
			return
		}
		var body createProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.CreateProduct(r.Context(), seller.ID, products.CreateProductInput{
			Name:        body.Name,
			Description: body.Description,
			Image:       body.Image,
			Price:       body.Price,
			MRP:         body.MRP,
			Stock:       body.Stock,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, product)
	}
}

func SellerProductUpdate(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, ok := middleware.SellerFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "seller account required"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body updateProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.UpdateProduct(r.Context(), seller.ID, productID, products.UpdateProductInput{
			Name:        body.Name,
			Description: body.Description,
			Image:       body.Image,
			Price:       body.Price,
			MRP:         body.MRP,
			Stock:       body.Stock,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}

func SellerProductArchive(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		seller, ok := middleware.SellerFromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "seller account required"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.ArchiveProduct(r.Context(), seller.ID, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"archived": true})
	}
}

func AdminProductReview(svc products.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body reviewProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		product, err := svc.ReviewProduct(r.Context(), productID, enums.ProductStatus(body.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, product)
	}
}
