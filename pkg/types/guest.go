package types

import (
	"database/sql/driver"
	"strings"
)

// GuestInfo identifies the purchaser of an order placed without an account.
type GuestInfo struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,phone"`
}

// Matches compares a caller supplied email against the stored guest email.
func (g *GuestInfo) Matches(email string) bool {
	if g == nil {
		return false
	}
	supplied := strings.TrimSpace(email)
	return supplied != "" && strings.EqualFold(strings.TrimSpace(g.Email), supplied)
}

// Value serializes the guest contact to JSON.
func (g GuestInfo) Value() (driver.Value, error) {
	return marshalJSON(g)
}

// Scan decodes JSONB into the guest contact.
func (g *GuestInfo) Scan(value interface{}) error {
	if value == nil {
		*g = GuestInfo{}
		return nil
	}
	return scanJSON(value, g)
}
