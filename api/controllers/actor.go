package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/api/middleware"
	"github.com/angelmondragon/marketplace-backend/internal/orders"
	"github.com/angelmondragon/marketplace-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// RequireUser returns the authenticated user id or an unauthorized error.
func RequireUser(r *http.Request) (uuid.UUID, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	return userID, nil
}

// OrderActor maps the authenticated principal to an order actor. Without a
// token the caller is a guest and must supply the order email.
func OrderActor(r *http.Request, guestEmail string) (orders.Actor, error) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if ok {
		if middleware.RoleFromContext(r.Context()) == enums.RoleAdmin {
			return orders.AdminActor(userID), nil
		}
		return orders.BuyerActor(userID), nil
	}
	email := strings.TrimSpace(guestEmail)
	if email == "" {
		return orders.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "sign in or provide the order email")
	}
	return orders.GuestActor(email), nil
}
