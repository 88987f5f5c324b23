package services

import (
	"context"
	"fmt"

	"github.com/anjiri1684/studio_booking/ledger"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// SweepResult counts what one maturity run did.
type SweepResult struct {
	Completed int
	Settled   int
	Penalties int
}

// MatureEarnings completes approved bookings whose session ended more than
// MaturityHold ago and moves held earnings to available balances, for them
// and for charged cancellations. Penalties whose transfer failed earlier are
// retried too. Failures are logged and picked up by the next run.
func (s *BookingService) MatureEarnings(ctx context.Context) (result SweepResult, err error) {
	ctx, span := tracer.Start(ctx, "booking.mature_earnings")
	defer func() { finish(span, err) }()

	cutoff := s.now().Add(-s.policy.MaturityHold)

	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("status = ? AND ends_at <= ?", models.StatusApproved, cutoff).
		Update("status", models.StatusCompleted)
	if res.Error != nil {
		return result, fmt.Errorf("complete bookings: %w", res.Error)
	}
	result.Completed = int(res.RowsAffected)

	var due []models.Booking
	err = s.db.WithContext(ctx).
		Where("status IN ? AND earnings_held = ? AND earnings_settled = ? AND ends_at <= ?",
			[]models.BookingStatus{models.StatusCompleted, models.StatusCancelledCharged}, true, false, cutoff).
		Limit(200).
		Find(&due).Error
	if err != nil {
		return result, fmt.Errorf("load maturing bookings: %w", err)
	}
	for i := range due {
		b := &due[i]
		if err := s.settle(ctx, b); err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Warn("earnings not settled")
			continue
		}
		result.Settled++
	}

	var penalties []models.Booking
	err = s.db.WithContext(ctx).
		Where("penalty_due = ? AND penalty_processed = ?", true, false).
		Limit(200).
		Find(&penalties).Error
	if err != nil {
		return result, fmt.Errorf("load unsettled penalties: %w", err)
	}
	for i := range penalties {
		b := &penalties[i]
		if err := s.settlePenalty(ctx, b); err != nil {
			s.log.WithError(err).WithField("booking_id", b.ID).Warn("penalty not settled")
			continue
		}
		result.Penalties++
	}

	if result != (SweepResult{}) {
		s.log.WithFields(logrus.Fields{
			"completed": result.Completed, "settled": result.Settled, "penalties": result.Penalties,
		}).Info("maturity sweep")
	}
	return result, nil
}

// settle claims the booking's earnings and matures each share. A claim whose
// first transfer fails is handed back; a half-settled booking is fatal.
func (s *BookingService) settle(ctx context.Context, b *models.Booking) error {
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND earnings_held = ? AND earnings_settled = ?", b.ID, true, false).
		Update("earnings_settled", true)
	if res.Error != nil {
		return fmt.Errorf("claim earnings: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	ownerID, err := s.ownerOf(ctx, b.StudioID)
	if err != nil {
		return s.unclaim(ctx, b, err)
	}
	pb := b.PriceBreakdown.Data()
	entry := ledger.Entry{Reason: "booking_matured", BookingID: &b.ID}
	shares := []struct {
		account uuid.UUID
		amount  decimal.Decimal
	}{
		{b.InstructorID, pb.InstructorPortion()},
		{ownerID, pb.StudioPortion()},
	}
	moved := 0
	for _, share := range shares {
		if !share.amount.IsPositive() {
			continue
		}
		if err := s.ledger.Mature(ctx, share.account, share.amount, entry); err != nil {
			if moved == 0 {
				return s.unclaim(ctx, b, err)
			}
			return s.ledger.Fatal(ctx, "earnings partly matured", err, logrus.Fields{
				"booking_id": b.ID, "account": share.account, "amount": share.amount.String(),
			})
		}
		moved++
	}

	if b.Status == models.StatusCompleted {
		s.announce(b, notifications.BookingCompleted, ownerID)
	}
	return nil
}

func (s *BookingService) unclaim(ctx context.Context, b *models.Booking, cause error) error {
	err := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", b.ID).
		Update("earnings_settled", false).Error
	if err != nil {
		return s.ledger.Fatal(ctx, "earnings claim could not be released", err, logrus.Fields{"booking_id": b.ID})
	}
	return cause
}
