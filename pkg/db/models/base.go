package models

import "github.com/google/uuid"

// assignID gives new rows a client-side UUID so inserts behave the same on
// postgres and sqlite.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

// All lists every persisted model, in dependency order, for AutoMigrate in tests.
func All() []any {
	return []any{
		&User{},
		&Category{},
		&Product{},
		&Cart{},
		&CartItem{},
		&Coupon{},
		&Order{},
		&OrderItem{},
		&Review{},
		&Notification{},
		&OutboxEvent{},
	}
}
