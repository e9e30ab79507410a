package models

import "github.com/google/uuid"

// assignID gives new rows a client-side UUID so inserts behave the same on every
// dialect gorm drives.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order.
func All() []any {
	return []any{
		&Seller{},
		&Product{},
		&Cart{},
		&CartItem{},
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&PaymentIntent{},
		&OutboxEvent{},
	}
}
