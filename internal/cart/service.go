package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type productLoader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

// Service exposes buyer cart operations.
type Service interface {
	Get(ctx context.Context, userID uuid.UUID) (*CartDTO, error)
	AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartDTO, error)
	UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartDTO, error)
	RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*CartDTO, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo     CartRepository
	tx       txRunner
	products productLoader
}

// NewService wires the cart service.
func NewService(repo CartRepository, tx txRunner, products productLoader) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	return &service{repo: repo, tx: tx, products: products}, nil
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) (*CartDTO, error) {
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewCartDTO(nil, nil), nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	items, err := s.repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart items")
	}
	return NewCartDTO(cart, items), nil
}

// AddItem creates the cart on first use and increments an existing line. The
// product snapshot is taken only when the line is first created.
func (s *service) AddItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartDTO, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	product, err := s.loadPurchasable(ctx, productID)
	if err != nil {
		return nil, err
	}

	var result *CartDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := s.ensureCart(ctx, repo, userID)
		if err != nil {
			return err
		}

		item, err := repo.FindItem(ctx, cart.ID, productID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := checkStock(product, quantity); err != nil {
				return err
			}
			item = &models.CartItem{
				CartID:    cart.ID,
				ProductID: product.ID,
				SellerID:  product.SellerID,
				Name:      product.Name,
				Price:     product.Price,
				Image:     product.Image,
				Quantity:  quantity,
			}
			if err := repo.CreateItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "add cart item")
			}
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart item")
		default:
			if err := checkStock(product, item.Quantity+quantity); err != nil {
				return err
			}
			item.Quantity += quantity
			if err := repo.SaveItem(ctx, item); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart item")
			}
		}

		result, err = snapshot(ctx, repo, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) UpdateItem(ctx context.Context, userID, productID uuid.UUID, quantity int) (*CartDTO, error) {
	if quantity < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	product, err := s.loadPurchasable(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := checkStock(product, quantity); err != nil {
		return nil, err
	}

	var result *CartDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return mapCartLookup(err)
		}
		item, err := repo.FindItem(ctx, cart.ID, productID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart item")
		}
		item.Quantity = quantity
		if err := repo.SaveItem(ctx, item); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update cart item")
		}
		result, err = snapshot(ctx, repo, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*CartDTO, error) {
	var result *CartDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cart, err := repo.FindByUserID(ctx, userID)
		if err != nil {
			return mapCartLookup(err)
		}
		removed, err := repo.DeleteItem(ctx, cart.ID, productID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "remove cart item")
		}
		if !removed {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item not in cart")
		}
		result, err = snapshot(ctx, repo, cart)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) Clear(ctx context.Context, userID uuid.UUID) error {
	cart, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return ClearWithTx(ctx, s.repo, tx, cart.ID)
	})
}

// ClearWithTx empties a cart inside the caller's transaction.
func ClearWithTx(ctx context.Context, repo CartRepository, tx *gorm.DB, cartID uuid.UUID) error {
	scoped := repo.WithTx(tx)
	if err := scoped.ClearItems(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clear cart")
	}
	if err := scoped.Touch(ctx, cartID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "touch cart")
	}
	return nil
}

func (s *service) loadPurchasable(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load product")
	}
	if !product.Purchasable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeStateConflict, "%q is not available for purchase", product.Name)
	}
	return product, nil
}

func (s *service) ensureCart(ctx context.Context, repo CartRepository, userID uuid.UUID) (*models.Cart, error) {
	cart, err := repo.FindByUserID(ctx, userID)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
	}
	cart = &models.Cart{UserID: userID}
	if err := repo.Create(ctx, cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create cart")
	}
	return cart, nil
}

func snapshot(ctx context.Context, repo CartRepository, cart *models.Cart) (*CartDTO, error) {
	if err := repo.Touch(ctx, cart.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "touch cart")
	}
	items, err := repo.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart items")
	}
	return NewCartDTO(cart, items), nil
}

func checkStock(product *models.Product, quantity int) error {
	if product.Stock < quantity {
		return pkgerrors.OutOfStock(product.Name, product.Stock)
	}
	return nil
}

func mapCartLookup(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "cart not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart")
}
