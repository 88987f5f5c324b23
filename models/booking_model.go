package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BookingStatus string

const (
	StatusPending           BookingStatus = "pending"
	StatusApproved          BookingStatus = "approved"
	StatusRejected          BookingStatus = "rejected"
	StatusCancelledRefunded BookingStatus = "cancelled_refunded"
	StatusCancelledCharged  BookingStatus = "cancelled_charged"
	StatusCompleted         BookingStatus = "completed"
)

func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusCancelledRefunded, StatusCancelledCharged, StatusCompleted:
		return true
	}
	return false
}

func (s BookingStatus) Cancelled() bool {
	return s == StatusCancelledRefunded || s == StatusCancelledCharged
}

// InactiveStatuses never block an instructor's time.
var InactiveStatuses = []BookingStatus{StatusRejected, StatusCancelledRefunded, StatusCancelledCharged}

type Booking struct {
	ID            uuid.UUID                       `gorm:"type:uuid;primary_key" json:"id"`
	ClientID      uuid.UUID                       `gorm:"type:uuid;not null;index" json:"client_id"`
	InstructorID  uuid.UUID                       `gorm:"type:uuid;not null;index:idx_booking_instructor_start" json:"instructor_id"`
	StudioID      uuid.UUID                       `gorm:"type:uuid;not null;index" json:"studio_id"`
	SlotID        uuid.UUID                       `gorm:"type:uuid;not null" json:"slot_id"`
	BookedSlotIDs datatypes.JSONType[[]uuid.UUID] `json:"booked_slot_ids"`

	Date      string    `gorm:"size:10;not null;index:idx_booking_instructor_start" json:"date"`
	StartTime string    `gorm:"size:5;not null;index:idx_booking_instructor_start" json:"start_time"`
	EndTime   string    `gorm:"size:5;not null" json:"end_time"`
	StartsAt  time.Time `gorm:"not null" json:"starts_at"`
	EndsAt    time.Time `gorm:"not null;index" json:"ends_at"`
	Location  string    `gorm:"size:255" json:"location"`

	Status         BookingStatus                      `gorm:"size:24;not null;index;default:'pending'" json:"status"`
	Equipment      string                             `gorm:"size:100;not null" json:"equipment"`
	Quantity       int                                `gorm:"not null" json:"quantity"`
	TotalPrice     decimal.Decimal                    `gorm:"type:numeric(12,2);not null" json:"total_price"`
	PriceBreakdown datatypes.JSONType[PriceBreakdown] `json:"price_breakdown"`

	PaymentProofURL *string    `gorm:"size:512" json:"payment_proof_url,omitempty"`
	ExpiresAt       *time.Time `gorm:"index" json:"expires_at,omitempty"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`

	EarningsHeld     bool `json:"earnings_held"`
	EarningsSettled  bool `json:"earnings_settled"`
	PenaltyDue       bool `gorm:"index" json:"penalty_due"`
	PenaltyProcessed bool `json:"penalty_processed"`

	CancelledBy        *Role      `gorm:"size:20" json:"cancelled_by,omitempty"`
	CancellationReason *string    `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (b *Booking) BeforeCreate(tx *gorm.DB) error {
	assignID(&b.ID)
	return nil
}

// Breakdown returns the stored price breakdown after validating it.
func (b Booking) Breakdown() (PriceBreakdown, error) {
	pb := b.PriceBreakdown.Data()
	return pb, pb.Validate()
}

func (b Booking) SlotIDs() []uuid.UUID {
	return b.BookedSlotIDs.Data()
}

// Collected is what the client has actually paid for the booking: the wallet
// deduction, plus the total once a payment proof is on file.
func (b Booking) Collected() decimal.Decimal {
	if b.PaymentProofURL != nil {
		return b.WalletDeduction().Add(b.TotalPrice)
	}
	return b.WalletDeduction()
}

// WalletDeduction is the part of the price that was paid from the wallet.
func (b Booking) WalletDeduction() decimal.Decimal {
	if d := b.PriceBreakdown.Data().WalletDeduction; d != nil {
		return *d
	}
	return decimal.Zero
}
