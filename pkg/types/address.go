package types

import (
	"database/sql/driver"
	"strings"
)

// ShippingAddress is a full delivery address copied onto an order at checkout.
// It never references a saved address book entry.
type ShippingAddress struct {
	FullName     string  `json:"full_name" validate:"required,max=120"`
	Phone        string  `json:"phone" validate:"required,phone"`
	AddressLine1 string  `json:"address_line1" validate:"required,max=200"`
	AddressLine2 *string `json:"address_line2,omitempty" validate:"omitempty,max=200"`
	City         string  `json:"city" validate:"required,max=100"`
	State        string  `json:"state" validate:"required,max=100"`
	PostalCode   string  `json:"postal_code" validate:"required,max=20"`
	Country      string  `json:"country,omitempty" validate:"omitempty,max=56"`
}

// MissingFields lists the required address fields that are blank.
func (a ShippingAddress) MissingFields() []string {
	required := []struct {
		name  string
		value string
	}{
		{"full_name", a.FullName},
		{"phone", a.Phone},
		{"address_line1", a.AddressLine1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
	}
	var missing []string
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	return missing
}

// Value serializes the address to JSON.
func (a ShippingAddress) Value() (driver.Value, error) {
	return marshalJSON(a)
}

// Scan decodes JSONB into the address.
func (a *ShippingAddress) Scan(value interface{}) error {
	if value == nil {
		*a = ShippingAddress{}
		return nil
	}
	return scanJSON(value, a)
}
