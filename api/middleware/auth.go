package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/marketplace-backend/api/responses"
	pkgAuth "github.com/angelmondragon/marketplace-backend/pkg/auth"
	"github.com/angelmondragon/marketplace-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
	"github.com/angelmondragon/marketplace-backend/pkg/logger"
)

// Auth validates a bearer token and seeds the request context with the claims.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			ctx, err := authenticate(r.Context(), cfg, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth attaches the caller identity when a token is presented and lets
// anonymous requests through. A malformed or expired token is still rejected.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx, err := authenticate(r.Context(), cfg, logg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = raw[7:]
	}
	return strings.TrimSpace(raw)
}

func authenticate(ctx context.Context, cfg config.JWTConfig, logg *logger.Logger, token string) (context.Context, error) {
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if errors.Is(err, pkgAuth.ErrExpired) {
		return ctx, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "token expired")
	}
	if err != nil {
		return ctx, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	ctx = WithIdentity(ctx, claims.UserID, claims.Role)
	if logg != nil {
		ctx = logg.WithActor(ctx, claims.UserID.String(), string(claims.Role))
	}
	return ctx, nil
}
