package models

// All lists every persisted model, in migration order.
func All() []any {
	return []any{
		&User{},
		&InstructorProfile{},
		&StudioProfile{},
		&Wallet{},
		&LedgerEntry{},
		&InstructorAvailability{},
		&Slot{},
		&Booking{},
		&PayoutRequest{},
		&StudioStrike{},
	}
}
