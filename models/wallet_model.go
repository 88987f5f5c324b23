package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet holds the two balance fields of an account. AvailableBalance may go
// negative to represent debt; PendingBalance never does.
type Wallet struct {
	AccountID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"account_id"`
	AvailableBalance decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"available_balance"`
	PendingBalance   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:0" json:"pending_balance"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

func (w Wallet) Total() decimal.Decimal {
	return w.AvailableBalance.Add(w.PendingBalance)
}

type EntryKind string

const (
	EntryCredit      EntryKind = "credit"
	EntryDebit       EntryKind = "debit"
	EntryHold        EntryKind = "hold"
	EntryMature      EntryKind = "mature"
	EntryReleaseHold EntryKind = "release_hold"
)

// LedgerEntry is the append-only audit trail of balance movements.
type LedgerEntry struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	AccountID uuid.UUID       `gorm:"type:uuid;not null;index" json:"account_id"`
	Kind      EntryKind       `gorm:"size:20;not null" json:"kind"`
	Amount    decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Reason    string          `gorm:"size:50;not null" json:"reason"`
	BookingID *uuid.UUID      `gorm:"type:uuid;index" json:"booking_id,omitempty"`
	PayoutID  *uuid.UUID      `gorm:"type:uuid" json:"payout_id,omitempty"`
	Memo      string          `gorm:"type:text" json:"memo,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	assignID(&e.ID)
	return nil
}
