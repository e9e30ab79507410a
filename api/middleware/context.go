package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "role"
	ctxSeller contextKey = "seller"
)

// UserIDFromContext returns the authenticated user id, if any.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxUserID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

func RoleFromContext(ctx context.Context) enums.Role {
	if ctx == nil {
		return ""
	}
	role, _ := ctx.Value(ctxRole).(enums.Role)
	return role
}

// SellerFromContext returns the approved seller resolved by RequireApprovedSeller.
func SellerFromContext(ctx context.Context) (*models.Seller, bool) {
	if ctx == nil {
		return nil, false
	}
	seller, ok := ctx.Value(ctxSeller).(*models.Seller)
	return seller, ok && seller != nil
}

// WithIdentity seeds the context with an authenticated principal.
func WithIdentity(ctx context.Context, userID uuid.UUID, role enums.Role) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxRole, role)
}

func WithSeller(ctx context.Context, seller *models.Seller) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxSeller, seller)
}
