package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.Role
	JTI    string
}

// AccessTokenClaims represents the typed JWT presented by buyers, sellers and admins.
// Seller rights are not carried in the token; they are read from the sellers table.
type AccessTokenClaims struct {
	UserID uuid.UUID  `json:"user_id"`
	Email  string     `json:"email,omitempty"`
	Role   enums.Role `json:"role"`
	jwt.RegisteredClaims
}
