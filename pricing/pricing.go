// Package pricing computes the multi-party price of a booking. It does no I/O.
package pricing

import (
	"errors"
	"time"

	"github.com/anjiri1684/studio_booking/models"
	"github.com/shopspring/decimal"
)

type Policy struct {
	DefaultFeePercent decimal.Decimal
	MinServiceFee     decimal.Decimal
	// ReferenceEquipment is the tier every instructor is priced at,
	// whatever equipment the client books.
	ReferenceEquipment string
}

type Input struct {
	Studio     models.StudioProfile
	Instructor models.InstructorProfile
	Equipment  string
	Quantity   int
	Duration   time.Duration
}

var hundred = decimal.NewFromInt(100)

// Quote prices one booking:
//
//	baseFee    = (studioRate + instructorRate) * hours
//	serviceFee = max(MinServiceFee, baseFee * feePct / 100)
//	total      = (baseFee + serviceFee) * quantity
func Quote(p Policy, in Input) (models.PriceBreakdown, error) {
	if in.Quantity <= 0 {
		return models.PriceBreakdown{}, errors.New("quantity must be positive")
	}
	if in.Duration <= 0 {
		return models.PriceBreakdown{}, errors.New("duration must be positive")
	}

	hours := decimal.NewFromInt(int64(in.Duration / time.Minute)).Div(decimal.NewFromInt(60))
	studioFee := StudioRate(in.Studio, in.Equipment).Mul(hours).Round(2)
	instructorFee := InstructorRate(in.Instructor, p.ReferenceEquipment).Mul(hours).Round(2)
	baseFee := studioFee.Add(instructorFee)

	feePct := FeePercent(p, in.Studio, in.Instructor)
	serviceFee := decimal.Max(p.MinServiceFee, baseFee.Mul(feePct).Div(hundred)).Round(2)
	perUnit := baseFee.Add(serviceFee)

	return models.PriceBreakdown{
		StudioFee:     studioFee,
		InstructorFee: instructorFee,
		ServiceFee:    serviceFee,
		FeePercent:    feePct,
		Hours:         hours.Round(4),
		Equipment:     in.Equipment,
		Quantity:      in.Quantity,
		PerUnit:       perUnit,
		Total:         perUnit.Mul(decimal.NewFromInt(int64(in.Quantity))),
	}, nil
}

// StudioRate is the equipment-specific price when the studio lists one,
// otherwise its flat hourly rate.
func StudioRate(studio models.StudioProfile, equipment string) decimal.Decimal {
	if rate, ok := studio.EquipmentPrices.Data().Lookup(equipment); ok {
		return rate
	}
	return studio.HourlyRate
}

// InstructorRate prices the instructor at the reference tier and ignores the
// booked equipment.
func InstructorRate(instructor models.InstructorProfile, reference string) decimal.Decimal {
	if rate, ok := instructor.Rates.Data().Lookup(reference); ok {
		return rate
	}
	return instructor.BaseRate
}

// FeePercent applies founding-partner overrides; the studio's wins over the
// instructor's.
func FeePercent(p Policy, studio models.StudioProfile, instructor models.InstructorProfile) decimal.Decimal {
	if studio.CustomFeePercent.Valid {
		return studio.CustomFeePercent.Decimal
	}
	if instructor.CustomFeePercent.Valid {
		return instructor.CustomFeePercent.Decimal
	}
	return p.DefaultFeePercent
}

// ApplyWallet offsets the total with the client's available balance and
// returns the deduction and the price left to pay.
func ApplyWallet(pb *models.PriceBreakdown, available decimal.Decimal) (deduction, final decimal.Decimal) {
	deduction = decimal.Min(decimal.Max(available, decimal.Zero), pb.Total)
	final = pb.Total.Sub(deduction)
	if deduction.IsPositive() {
		original := pb.Total
		pb.WalletDeduction = &deduction
		pb.OriginalPrice = &original
	}
	return deduction, final
}
