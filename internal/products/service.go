package product

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/pagination"
)

// Service exposes catalog management and public reads.
type Service interface {
	CreateProduct(ctx context.Context, sellerID uuid.UUID, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, sellerID, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	ArchiveProduct(ctx context.Context, sellerID, productID uuid.UUID) error
	GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error)
	ListPublic(ctx context.Context, params pagination.Params) (*ProductListResult, error)
	ListSellerProducts(ctx context.Context, sellerID uuid.UUID) ([]ProductDTO, error)
	ReviewProduct(ctx context.Context, productID uuid.UUID, status enums.ProductStatus) (*ProductDTO, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Name        string
	Description *string
	Image       *string
	Price       decimal.Decimal
	MRP         decimal.Decimal
	Stock       int
}

// UpdateProductInput holds optional mutation values for a product.
type UpdateProductInput struct {
	Name        *string
	Description *string
	Image       *string
	Price       *decimal.Decimal
	MRP         *decimal.Decimal
	Stock       *int
}

type sellerLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Seller, error)
}

type service struct {
	repo    *Repository
	sellers sellerLoader
}

// NewService constructs a product service instance.
func NewService(repo *Repository, sellers sellerLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if sellers == nil {
		return nil, fmt.Errorf("seller repository required")
	}
	return &service{repo: repo, sellers: sellers}, nil
}

func (s *service) CreateProduct(ctx context.Context, sellerID uuid.UUID, input CreateProductInput) (*ProductDTO, error) {
	if err := s.ensureSellerCanSell(ctx, sellerID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if err := validatePricing(input.Price, input.MRP); err != nil {
		return nil, err
	}
	if input.Stock < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
	}

	product := &models.Product{
		SellerID:    sellerID,
		Name:        name,
		Description: trimPtr(input.Description),
		Image:       trimPtr(input.Image),
		Price:       input.Price.Round(2),
		MRP:         input.MRP.Round(2),
		Stock:       input.Stock,
		Status:      enums.ProductStatusPending,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create product")
	}
	return NewProductDTO(product), nil
}

// UpdateProduct applies the changes. Edits to name or pricing send the product
// back to review; stock and media edits do not.
func (s *service) UpdateProduct(ctx context.Context, sellerID, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	if err := s.ensureSellerCanSell(ctx, sellerID); err != nil {
		return nil, err
	}
	product, err := s.loadOwned(ctx, sellerID, productID)
	if err != nil {
		return nil, err
	}

	needsReview, err := applyUpdate(product, input)
	if err != nil {
		return nil, err
	}
	if err := validatePricing(product.Price, product.MRP); err != nil {
		return nil, err
	}
	if needsReview {
		product.Status = enums.ProductStatusPending
	}
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update product")
	}
	return NewProductDTO(product), nil
}

func (s *service) ArchiveProduct(ctx context.Context, sellerID, productID uuid.UUID) error {
	product, err := s.loadOwned(ctx, sellerID, productID)
	if err != nil {
		return err
	}
	if product.Archived {
		return nil
	}
	product.Archived = true
	if err := s.repo.Save(ctx, product); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "archive product")
	}
	return nil
}

// GetProduct returns a purchasable product. Pending, rejected and archived
// listings are hidden from the public catalog.
func (s *service) GetProduct(ctx context.Context, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if !product.Purchasable() {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return NewProductDTO(product), nil
}

func (s *service) ListPublic(ctx context.Context, params pagination.Params) (*ProductListResult, error) {
	params = params.Normalize()
	rows, total, err := s.repo.ListPublic(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list products")
	}
	return &ProductListResult{
		Products:   toDTOs(rows),
		Pagination: pagination.NewMeta(params, total),
	}, nil
}

func (s *service) ListSellerProducts(ctx context.Context, sellerID uuid.UUID) ([]ProductDTO, error) {
	rows, err := s.repo.ListBySeller(ctx, sellerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list seller products")
	}
	return toDTOs(rows), nil
}

func (s *service) ReviewProduct(ctx context.Context, productID uuid.UUID, status enums.ProductStatus) (*ProductDTO, error) {
	if status != enums.ProductStatusApproved && status != enums.ProductStatusRejected {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "review status must be approved or rejected")
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if product.Status == status {
		return NewProductDTO(product), nil
	}
	product.Status = status
	if err := s.repo.Save(ctx, product); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "review product")
	}
	return NewProductDTO(product), nil
}

func (s *service) ensureSellerCanSell(ctx context.Context, sellerID uuid.UUID) error {
	seller, err := s.sellers.FindByID(ctx, sellerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "seller account required")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load seller")
	}
	if !seller.CanSell() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "seller account is not approved")
	}
	return nil
}

func (s *service) loadOwned(ctx context.Context, sellerID, productID uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if product.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return product, nil
}

func applyUpdate(product *models.Product, input UpdateProductInput) (bool, error) {
	needsReview := false
	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return false, pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
		}
		if name != product.Name {
			product.Name = name
			needsReview = true
		}
	}
	if input.Description != nil {
		product.Description = trimPtr(input.Description)
	}
	if input.Image != nil {
		product.Image = trimPtr(input.Image)
	}
	if input.Price != nil && !input.Price.Round(2).Equal(product.Price) {
		product.Price = input.Price.Round(2)
		needsReview = true
	}
	if input.MRP != nil && !input.MRP.Round(2).Equal(product.MRP) {
		product.MRP = input.MRP.Round(2)
		needsReview = true
	}
	if input.Stock != nil {
		if *input.Stock < 0 {
			return false, pkgerrors.New(pkgerrors.CodeValidation, "stock cannot be negative")
		}
		product.Stock = *input.Stock
	}
	return needsReview, nil
}

func validatePricing(price, mrp decimal.Decimal) error {
	if price.IsNegative() || mrp.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "price and mrp must be non-negative")
	}
	if price.GreaterThan(mrp) {
		return pkgerrors.New(pkgerrors.CodeValidation, "price cannot exceed mrp")
	}
	return nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
}

func trimPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
