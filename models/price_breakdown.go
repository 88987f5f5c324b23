package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PriceBreakdown is persisted on every booking. Fee fields are per unit;
// Total covers all units before any wallet offset.
type PriceBreakdown struct {
	StudioFee     decimal.Decimal `json:"studio_fee"`
	InstructorFee decimal.Decimal `json:"instructor_fee"`
	ServiceFee    decimal.Decimal `json:"service_fee"`
	FeePercent    decimal.Decimal `json:"fee_percent"`
	Hours         decimal.Decimal `json:"hours"`
	Equipment     string          `json:"equipment"`
	Quantity      int             `json:"quantity"`
	PerUnit       decimal.Decimal `json:"per_unit"`
	Total         decimal.Decimal `json:"total"`

	WalletDeduction *decimal.Decimal `json:"wallet_deduction,omitempty"`
	OriginalPrice   *decimal.Decimal `json:"original_price,omitempty"`

	Cancellation *CancellationDetails `json:"cancellation,omitempty"`
}

// CancellationDetails is appended to the breakdown when a booking is cancelled.
type CancellationDetails struct {
	CancelledBy      Role             `json:"cancelled_by"`
	CancelledAt      time.Time        `json:"cancelled_at"`
	Late             bool             `json:"late"`
	WithinGrace      bool             `json:"within_grace"`
	RefundAmount     decimal.Decimal  `json:"refund_amount"`
	PenaltyAmount    *decimal.Decimal `json:"penalty_amount,omitempty"`
	PenaltyPayer     *uuid.UUID       `json:"penalty_payer,omitempty"`
	PenaltyPayee     *uuid.UUID       `json:"penalty_payee,omitempty"`
	PenaltyProcessed bool             `json:"penalty_processed"`
}

func (pb PriceBreakdown) Validate() error {
	if strings.TrimSpace(pb.Equipment) == "" {
		return errors.New("price breakdown: equipment is required")
	}
	if pb.Quantity <= 0 {
		return errors.New("price breakdown: quantity must be positive")
	}
	for name, v := range map[string]decimal.Decimal{
		"studio_fee":     pb.StudioFee,
		"instructor_fee": pb.InstructorFee,
		"service_fee":    pb.ServiceFee,
		"total":          pb.Total,
	} {
		if v.IsNegative() {
			return fmt.Errorf("price breakdown: %s is negative", name)
		}
	}
	if !pb.PerUnit.Mul(decimal.NewFromInt(int64(pb.Quantity))).Equal(pb.Total) {
		return errors.New("price breakdown: total does not match per-unit price")
	}
	if pb.WalletDeduction != nil && pb.WalletDeduction.GreaterThan(pb.Total) {
		return errors.New("price breakdown: wallet deduction exceeds total")
	}
	return nil
}

// StudioPortion is the studio's share across all units.
func (pb PriceBreakdown) StudioPortion() decimal.Decimal {
	return pb.StudioFee.Mul(decimal.NewFromInt(int64(pb.Quantity)))
}

// InstructorPortion is the instructor's share across all units.
func (pb PriceBreakdown) InstructorPortion() decimal.Decimal {
	return pb.InstructorFee.Mul(decimal.NewFromInt(int64(pb.Quantity)))
}
