package models

// All lists every persisted model, in dependency order, for schema bootstrap
// in local sqlite mode and tests.
func All() []any {
	return []any{
		&User{},
		&Category{},
		&MenuItem{},
		&Order{},
		&OrderItem{},
		&OrderStatusHistory{},
		&Payment{},
		&Notification{},
		&DeliveryAgent{},
		&LoyaltyEntry{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
