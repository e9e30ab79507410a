package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/config"
)

var signingMethod = jwt.SigningMethodHS256

var (
	// ErrExpired is returned for a well-formed token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers every other rejection: bad signature, wrong issuer,
	// unexpected algorithm, missing identity.
	ErrInvalid = errors.New("token invalid")
)

func checkConfig(cfg config.JWTConfig) error {
	if cfg.Secret == "" {
		return errors.New("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return errors.New("jwt issuer is required")
	}
	return nil
}

// MintAccessToken signs payload with HS256 and the configured lifetime.
// Tokens are minted by the identity service in production; this is used by
// tooling and tests.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg); err != nil {
		return "", err
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", errors.New("jwt expiration minutes must be positive")
	}
	if payload.UserID == uuid.Nil {
		return "", errors.New("user id is required")
	}
	if !payload.Role.IsValid() {
		return "", fmt.Errorf("invalid role %q", payload.Role)
	}
	jti := strings.TrimSpace(payload.JTI)
	if jti == "" {
		jti = uuid.NewString()
	}
	ttl := time.Duration(cfg.ExpirationMinutes) * time.Minute

	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Email:  strings.TrimSpace(payload.Email),
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies raw and returns its claims. Failures wrap
// ErrExpired or ErrInvalid so callers can tell a stale session from a
// forged one.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, err
	}
	claims := &AccessTokenClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(cfg.Leeway),
	)
	_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("%w: %v", ErrExpired, err)
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	case claims.UserID == uuid.Nil || !claims.Role.IsValid():
		return nil, fmt.Errorf("%w: missing user or role", ErrInvalid)
	case claims.Subject != "" && claims.Subject != claims.UserID.String():
		return nil, fmt.Errorf("%w: subject does not match user", ErrInvalid)
	}
	return claims, nil
}
