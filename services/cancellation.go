package services

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/studio_booking/apperr"
	config "github.com/anjiri1684/studio_booking/configs"
	"github.com/anjiri1684/studio_booking/ledger"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

type CancelInput struct {
	Reason string `json:"reason" validate:"max=500"`
	// AcceptPenalty must be set by an instructor cancelling late, outside
	// the grace period.
	AcceptPenalty bool `json:"accept_penalty"`
}

// outcome is what a cancellation does to an approved booking.
type outcome struct {
	status      models.BookingStatus
	late        bool
	withinGrace bool
	refund      decimal.Decimal
	penalty     decimal.Decimal
	payer       uuid.UUID
	payee       uuid.UUID
	strike      bool
}

// decide applies the cancellation rules to an approved booking:
//
//   - a client cancelling at least CancellationWindow before the start is
//     refunded in full, later is charged;
//   - the instructor or studio is always refunding the client; cancelling
//     late and outside the grace period after approval also costs the
//     studio fee, paid to the other party, and the studio gets a strike;
//   - a booking without an approval time is always within grace;
//   - admins cancel without penalty.
func decide(p config.Policy, b *models.Booking, by models.Role, ownerID uuid.UUID, acceptPenalty bool, now time.Time) (outcome, error) {
	pb := b.PriceBreakdown.Data()
	out := outcome{
		late:        b.StartsAt.Sub(now) < p.CancellationWindow,
		withinGrace: b.ApprovedAt == nil || now.Sub(*b.ApprovedAt) <= p.GracePeriod,
		refund:      b.Collected(),
		status:      models.StatusCancelledRefunded,
	}

	switch by {
	case models.RoleCustomer:
		if out.late {
			out.status = models.StatusCancelledCharged
			out.refund = decimal.Zero
		}
		return out, nil
	case models.RoleAdmin:
		return out, nil
	}

	if !out.late || out.withinGrace {
		return out, nil
	}
	out.penalty = pb.StudioPortion()
	switch by {
	case models.RoleInstructor:
		if !acceptPenalty {
			return out, apperr.Newf(apperr.LateCancellationDenied,
				"cancelling less than %s before the session costs a %s penalty; confirm to proceed",
				p.CancellationWindow, out.penalty.StringFixed(2))
		}
		out.payer, out.payee = b.InstructorID, ownerID
	case models.RoleStudio:
		out.payer, out.payee = ownerID, b.InstructorID
		out.strike = true
	}
	return out, nil
}

// CancelBooking cancels on behalf of the client, the instructor, the studio
// owner or an admin. Pending bookings can only be withdrawn by the client or
// an admin and are always refunded.
func (s *BookingService) CancelBooking(ctx context.Context, actor Actor, id uuid.UUID, in CancelInput) (booking *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.cancel")
	defer func() { finish(span, err) }()

	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ownerID, err := s.ownerOf(ctx, b.StudioID)
	if err != nil {
		return nil, err
	}
	role, err := partyOf(actor, b, ownerID)
	if err != nil {
		return nil, err
	}

	switch {
	case b.Status.Cancelled():
		return nil, apperr.New(apperr.AlreadyCancelled, "booking is already cancelled")
	case b.Status == models.StatusPending:
		return s.withdraw(ctx, actor, role, b, ownerID, in.Reason)
	case b.Status != models.StatusApproved:
		return nil, apperr.Newf(apperr.InvalidTransition, "a %s booking cannot be cancelled", b.Status)
	}

	now := s.now()
	out, err := decide(s.policy, b, role, ownerID, in.AcceptPenalty, now)
	if err != nil {
		return nil, err
	}

	pb := b.PriceBreakdown.Data()
	pb.Cancellation = &models.CancellationDetails{
		CancelledBy:  role,
		CancelledAt:  now,
		Late:         out.late,
		WithinGrace:  out.withinGrace,
		RefundAmount: out.refund,
	}
	penaltyDue := out.penalty.IsPositive()
	if penaltyDue {
		pb.Cancellation.PenaltyAmount = &out.penalty
		pb.Cancellation.PenaltyPayer = &out.payer
		pb.Cancellation.PenaltyPayee = &out.payee
	}
	// A refunded booking will never mature, so its held earnings go.
	releaseHold := b.EarningsHeld && out.status == models.StatusCancelledRefunded

	updates := map[string]any{
		"status":          out.status,
		"cancelled_by":    role,
		"cancelled_at":    now,
		"price_breakdown": datatypes.NewJSONType(pb),
		"penalty_due":     penaltyDue,
	}
	if in.Reason != "" {
		updates["cancellation_reason"] = in.Reason
	}
	if releaseHold {
		updates["earnings_held"] = false
	}
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ? AND earnings_held = ?", id, models.StatusApproved, b.EarningsHeld).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("cancel booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.transitionError(ctx, id, "booking changed while cancelling")
	}

	fields := logrus.Fields{"booking_id": id, "by": role, "status": out.status, "refund": out.refund.String()}
	if _, err := s.alloc.Release(ctx, b.SlotIDs()); err != nil {
		return nil, s.ledger.Fatal(ctx, "slot release failed", err, fields)
	}
	if out.refund.IsPositive() {
		entry := ledger.Entry{Reason: "booking_cancel_refund", BookingID: &b.ID}
		if err := s.ledger.Credit(ctx, b.ClientID, out.refund, entry); err != nil {
			return nil, s.ledger.Fatal(ctx, "cancellation refund failed", err, fields)
		}
	}
	if releaseHold {
		if err := s.releaseEarnings(ctx, b, ownerID); err != nil {
			return nil, err
		}
	}

	b, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if penaltyDue {
		if err := s.settlePenalty(ctx, b); err != nil {
			if apperr.Is(err, apperr.FatalInconsistency) {
				return b, err
			}
			s.log.WithError(err).WithFields(fields).Warn("penalty transfer failed, sweep will retry")
		}
	}
	if out.strike {
		if _, err := s.studios.RecordStrike(ctx, b.StudioID, b.ID); err != nil {
			s.log.WithError(err).WithFields(fields).Error("failed to record studio strike")
		}
	}

	s.log.WithFields(fields).Info("booking cancelled")
	s.announce(b, notifications.BookingCancelled, ownerID)
	return b, nil
}

// withdraw cancels a booking that was never approved.
func (s *BookingService) withdraw(ctx context.Context, actor Actor, role models.Role, b *models.Booking, ownerID uuid.UUID, reason string) (*models.Booking, error) {
	if role != models.RoleCustomer && role != models.RoleAdmin {
		return nil, apperr.New(apperr.InvalidTransition, "pending bookings are rejected, not cancelled, by the studio or instructor")
	}
	now := s.now()
	refund := b.Collected()
	pb := b.PriceBreakdown.Data()
	pb.Cancellation = &models.CancellationDetails{CancelledBy: role, CancelledAt: now, WithinGrace: true, RefundAmount: refund}

	updates := map[string]any{
		"status":          models.StatusCancelledRefunded,
		"cancelled_by":    role,
		"cancelled_at":    now,
		"expires_at":      nil,
		"price_breakdown": datatypes.NewJSONType(pb),
	}
	if reason != "" {
		updates["cancellation_reason"] = reason
	}
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", b.ID, models.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("cancel booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.transitionError(ctx, b.ID, "booking changed while cancelling")
	}

	fields := logrus.Fields{"booking_id": b.ID, "by": actor.ID, "refund": refund.String()}
	if _, err := s.alloc.Release(ctx, b.SlotIDs()); err != nil {
		return nil, s.ledger.Fatal(ctx, "slot release failed", err, fields)
	}
	if refund.IsPositive() {
		entry := ledger.Entry{Reason: "booking_cancel_refund", BookingID: &b.ID}
		if err := s.ledger.Credit(ctx, b.ClientID, refund, entry); err != nil {
			return nil, s.ledger.Fatal(ctx, "cancellation refund failed", err, fields)
		}
	}

	b, err := s.load(ctx, b.ID)
	if err != nil {
		return nil, err
	}
	s.log.WithFields(fields).Info("pending booking withdrawn")
	s.announce(b, notifications.BookingCancelled, ownerID)
	return b, nil
}

// settlePenalty moves a cancellation penalty from payer to payee once. The
// booking is claimed through penalty_processed; a failed transfer hands the
// claim back for the next sweep.
func (s *BookingService) settlePenalty(ctx context.Context, b *models.Booking) error {
	pb := b.PriceBreakdown.Data()
	c := pb.Cancellation
	if c == nil || c.PenaltyAmount == nil || c.PenaltyPayer == nil || c.PenaltyPayee == nil {
		return nil
	}

	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND penalty_due = ? AND penalty_processed = ?", b.ID, true, false).
		Update("penalty_processed", true)
	if res.Error != nil {
		return fmt.Errorf("claim penalty: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil
	}

	fields := logrus.Fields{"booking_id": b.ID, "payer": *c.PenaltyPayer, "payee": *c.PenaltyPayee, "amount": c.PenaltyAmount.String()}
	entry := ledger.Entry{Reason: "cancellation_penalty", BookingID: &b.ID}
	if err := s.ledger.Transfer(ctx, *c.PenaltyPayer, *c.PenaltyPayee, *c.PenaltyAmount, entry, false); err != nil {
		if apperr.Is(err, apperr.FatalInconsistency) {
			return err
		}
		rerr := s.db.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ?", b.ID).
			Update("penalty_processed", false).Error
		if rerr != nil {
			return s.ledger.Fatal(ctx, "penalty claim could not be released", rerr, fields)
		}
		return err
	}

	c.PenaltyProcessed = true
	if err := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", b.ID).
		Update("price_breakdown", datatypes.NewJSONType(pb)).Error; err != nil {
		s.log.WithError(err).WithFields(fields).Warn("penalty settled but breakdown not updated")
	}
	b.PenaltyProcessed = true
	b.PriceBreakdown = datatypes.NewJSONType(pb)

	s.log.WithFields(fields).Info("cancellation penalty settled")
	for _, to := range []uuid.UUID{*c.PenaltyPayer, *c.PenaltyPayee} {
		s.notify.Dispatch(notifications.Notification{
			Recipient: to,
			Kind:      notifications.PenaltyApplied,
			Fields: map[string]string{
				"booking_id": b.ID.String(),
				"amount":     c.PenaltyAmount.StringFixed(2),
			},
		})
	}
	return nil
}

// partyOf maps the actor to the role it plays in this booking.
func partyOf(actor Actor, b *models.Booking, ownerID uuid.UUID) (models.Role, error) {
	switch {
	case actor.IsAdmin():
		return models.RoleAdmin, nil
	case actor.ID == b.ClientID:
		return models.RoleCustomer, nil
	case actor.ID == b.InstructorID:
		return models.RoleInstructor, nil
	case actor.ID == ownerID:
		return models.RoleStudio, nil
	}
	return "", apperr.New(apperr.Unauthorized, "you are not part of this booking")
}
