package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	"github.com/angelmondragon/marketplace-backend/pkg/db/models"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

func RequireRole(role enums.Role, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if RoleFromContext(r.Context()) != role {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SellerChecker resolves the approved seller account behind a user.
type SellerChecker interface {
	ApprovedSellerFor(ctx context.Context, userID uuid.UUID) (*models.Seller, error)
}

// RequireApprovedSeller derives seller rights from the sellers table on every
// request; tokens never carry them.
func RequireApprovedSeller(checker SellerChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if checker == nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "seller checker unavailable"))
				return
			}
			userID, ok := UserIDFromContext(ctx)
			if !ok {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			seller, err := checker.ApprovedSellerFor(ctx, userID)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			ctx = WithSeller(ctx, seller)
			if logg != nil {
				ctx = logg.WithSellerID(ctx, seller.ID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
