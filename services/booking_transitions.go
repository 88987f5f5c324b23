package services

import (
	"context"
	"fmt"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/ledger"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type PaymentProofInput struct {
	URL string `json:"payment_proof_url" validate:"required,url,max=512"`
}

type RejectInput struct {
	WithRefund bool   `json:"with_refund"`
	Reason     string `json:"reason" validate:"max=500"`
}

// SubmitPaymentProof attaches the client's proof of payment. A pending booking
// stays pending with its payment-hold clock stopped; an unpaid direct session
// starts holding its earnings.
func (s *BookingService) SubmitPaymentProof(ctx context.Context, actor Actor, id uuid.UUID, in PaymentProofInput) (booking *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.payment_proof")
	defer func() { finish(span, err) }()

	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.ClientID != actor.ID {
		return nil, apperr.New(apperr.Unauthorized, "only the client can submit payment proof")
	}

	ownerID, err := s.ownerOf(ctx, b.StudioID)
	if err != nil {
		return nil, err
	}

	// A direct session is approved before it is paid; its proof is what
	// lets the earnings be held.
	unpaidDirect := b.Status == models.StatusApproved
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	updates := map[string]any{"payment_proof_url": in.URL}
	if unpaidDirect {
		q = q.Where("id = ? AND status = ? AND payment_proof_url IS NULL AND earnings_held = ?", id, models.StatusApproved, false)
		updates["earnings_held"] = true
	} else {
		q = q.Where("id = ? AND status = ?", id, models.StatusPending)
		updates["expires_at"] = nil
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("store payment proof: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.transitionError(ctx, id, "payment proof can only be added to pending or unpaid bookings")
	}

	b, err = s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if unpaidDirect {
		if err := s.holdEarnings(ctx, b, ownerID); err != nil {
			return b, err
		}
	}
	s.notify.Dispatch(notifications.Notification{
		Recipient: ownerID,
		Kind:      notifications.PaymentProofAdded,
		Fields:    map[string]string{"booking_id": id.String(), "payment_proof_url": in.URL},
	})
	return b, nil
}

// ApproveBooking confirms a pending booking and holds the instructor's and
// the studio's earnings until the session matures.
func (s *BookingService) ApproveBooking(ctx context.Context, actor Actor, id uuid.UUID) (booking *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.approve")
	defer func() { finish(span, err) }()

	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ownerID, err := s.authorizeOperator(ctx, actor, b)
	if err != nil {
		return nil, err
	}
	if b.Status == models.StatusPending && b.PaymentProofURL == nil && b.TotalPrice.IsPositive() {
		return nil, apperr.New(apperr.ValidationError, "payment proof is required before approval")
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(map[string]any{
			"status":        models.StatusApproved,
			"approved_at":   now,
			"expires_at":    nil,
			"earnings_held": true,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("approve booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.transitionError(ctx, id, "only pending bookings can be approved")
	}
	b.Status, b.ApprovedAt, b.ExpiresAt, b.EarningsHeld = models.StatusApproved, &now, nil, true

	if err := s.holdEarnings(ctx, b, ownerID); err != nil {
		return b, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": id, "by": actor.ID}).Info("booking approved")
	s.announce(b, notifications.BookingApproved, ownerID)
	return b, nil
}

// RejectBooking turns a pending booking down and releases its slots. With
// WithRefund the wallet part of the price goes back to the client.
func (s *BookingService) RejectBooking(ctx context.Context, actor Actor, id uuid.UUID, in RejectInput) (booking *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.reject")
	defer func() { finish(span, err) }()

	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ownerID, err := s.authorizeOperator(ctx, actor, b)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"status": models.StatusRejected, "expires_at": nil}
	if in.Reason != "" {
		updates["cancellation_reason"] = in.Reason
	}
	res := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, models.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("reject booking: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, s.transitionError(ctx, id, "only pending bookings can be rejected")
	}
	b.Status, b.ExpiresAt = models.StatusRejected, nil

	if err := s.unwindPending(ctx, b, in.WithRefund, "booking_rejected_refund"); err != nil {
		return b, err
	}
	s.log.WithFields(logrus.Fields{"booking_id": id, "by": actor.ID, "refund": in.WithRefund}).Info("booking rejected")
	s.announce(b, notifications.BookingRejected, ownerID)
	return b, nil
}

// ExpirePending rejects pending bookings whose payment hold ran out. Each
// booking is claimed with a status compare-and-swap before anything is
// released or refunded, so overlapping sweeps and user actions never apply
// the side effects twice. Failures are left for the next run.
func (s *BookingService) ExpirePending(ctx context.Context) (expired int, err error) {
	ctx, span := tracer.Start(ctx, "booking.expire_pending")
	defer func() { finish(span, err) }()

	now := s.now()
	var due []models.Booking
	err = s.db.WithContext(ctx).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.StatusPending, now).
		Order("expires_at").
		Limit(200).
		Find(&due).Error
	if err != nil {
		return 0, fmt.Errorf("load expired bookings: %w", err)
	}

	for i := range due {
		b := &due[i]
		log := s.log.WithField("booking_id", b.ID)
		res := s.db.WithContext(ctx).Model(&models.Booking{}).
			Where("id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?", b.ID, models.StatusPending, now).
			Updates(map[string]any{"status": models.StatusRejected, "cancellation_reason": "payment hold expired"})
		if res.Error != nil {
			log.WithError(res.Error).Warn("expire booking failed")
			continue
		}
		if res.RowsAffected == 0 {
			continue
		}
		b.Status = models.StatusRejected
		if err := s.unwindPending(ctx, b, s.policy.ExpiryRefundsWallet, "booking_expired_refund"); err != nil {
			log.WithError(err).Error("expired booking not fully unwound")
			continue
		}
		expired++
		if ownerID, err := s.ownerOf(ctx, b.StudioID); err == nil {
			s.announce(b, notifications.BookingExpired, ownerID)
		}
	}
	if expired > 0 {
		s.log.WithField("expired", expired).Info("pending bookings expired")
	}
	return expired, nil
}

// unwindPending releases the slots of a booking that never got approved and
// optionally refunds its wallet deduction. The caller has already claimed the
// status change, so failures here are escalated.
func (s *BookingService) unwindPending(ctx context.Context, b *models.Booking, refund bool, reason string) error {
	fields := logrus.Fields{"booking_id": b.ID, "client_id": b.ClientID}
	if _, err := s.alloc.Release(ctx, b.SlotIDs()); err != nil {
		return s.ledger.Fatal(ctx, "slot release failed", err, fields)
	}
	if !refund {
		return nil
	}
	if amount := b.WalletDeduction(); amount.IsPositive() {
		if err := s.ledger.Credit(ctx, b.ClientID, amount, ledger.Entry{Reason: reason, BookingID: &b.ID}); err != nil {
			return s.ledger.Fatal(ctx, "wallet refund failed", err, fields)
		}
	}
	return nil
}

func (s *BookingService) load(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	if err := s.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "booking")
	}
	return &b, nil
}

func (s *BookingService) ownerOf(ctx context.Context, studioID uuid.UUID) (uuid.UUID, error) {
	var studio models.StudioProfile
	err := s.db.WithContext(ctx).Select("id", "owner_id").First(&studio, "id = ?", studioID).Error
	if err != nil {
		return uuid.Nil, notFound(err, "studio")
	}
	return studio.OwnerID, nil
}

// authorizeOperator lets admins and the owner of the booked studio act on a
// booking and returns the owner.
func (s *BookingService) authorizeOperator(ctx context.Context, actor Actor, b *models.Booking) (uuid.UUID, error) {
	ownerID, err := s.ownerOf(ctx, b.StudioID)
	if err != nil {
		return uuid.Nil, err
	}
	if actor.IsAdmin() || (actor.Role == models.RoleStudio && actor.ID == ownerID) {
		return ownerID, nil
	}
	return uuid.Nil, apperr.New(apperr.Unauthorized, "only the studio or an admin can do this")
}

// transitionError explains why a status compare-and-swap matched nothing.
func (s *BookingService) transitionError(ctx context.Context, id uuid.UUID, msg string) error {
	b, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if b.Status.Cancelled() {
		return apperr.New(apperr.AlreadyCancelled, "booking is already cancelled")
	}
	return apperr.Newf(apperr.InvalidTransition, "%s; booking is %s", msg, b.Status)
}
