package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/studio_booking/allocator"
	"github.com/anjiri1684/studio_booking/apperr"
	config "github.com/anjiri1684/studio_booking/configs"
	"github.com/anjiri1684/studio_booking/ledger"
	"github.com/anjiri1684/studio_booking/matcher"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/anjiri1684/studio_booking/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type BookingDeps struct {
	DB      *gorm.DB
	Log     *logrus.Logger
	Policy  config.Policy
	Ledger  *ledger.Service
	Matcher *matcher.Service
	Alloc   *allocator.Service
	Studios *StudioService
	Notify  notifications.Dispatcher
}

// BookingService is the booking lifecycle controller. It owns every status
// change of a booking and the money and inventory side effects tied to it.
type BookingService struct {
	db      *gorm.DB
	log     *logrus.Logger
	policy  config.Policy
	pricing pricing.Policy
	ledger  *ledger.Service
	matcher *matcher.Service
	alloc   *allocator.Service
	studios *StudioService
	notify  notifications.Dispatcher
	now     func() time.Time
}

func NewBookingService(d BookingDeps) *BookingService {
	return &BookingService{
		db:     d.DB,
		log:    d.Log,
		policy: d.Policy,
		pricing: pricing.Policy{
			DefaultFeePercent:  d.Policy.DefaultFeePercent,
			MinServiceFee:      d.Policy.MinServiceFee,
			ReferenceEquipment: d.Policy.ReferenceEquipment,
		},
		ledger:  d.Ledger,
		matcher: d.Matcher,
		alloc:   d.Alloc,
		studios: d.Studios,
		notify:  d.Notify,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

type CreateBookingInput struct {
	SlotID       uuid.UUID `json:"slot_id" validate:"required"`
	InstructorID uuid.UUID `json:"instructor_id" validate:"required"`
	// ClientID is only read on the instructor direct-session path.
	ClientID  uuid.UUID `json:"client_id"`
	Equipment string    `json:"equipment" validate:"required,max=100"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
	StartTime string    `json:"start_time" validate:"required_with=EndTime"`
	EndTime   string    `json:"end_time" validate:"required_with=StartTime"`
	Location  string    `json:"location" validate:"max=255"`
}

// CreateBooking runs validation, policy checks, matching, pricing,
// allocation, the wallet offset and the insert in that order. A failure
// undoes the steps already taken in reverse order.
//
// Clients get a pending booking on a payment hold. Instructors booking a
// client directly get an approved booking with no approval time, which keeps
// it inside the cancellation grace period.
func (s *BookingService) CreateBooking(ctx context.Context, actor Actor, in CreateBookingInput) (booking *models.Booking, err error) {
	ctx, span := tracer.Start(ctx, "booking.create")
	defer func() { finish(span, err) }()

	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	clientID, direct, err := bookingPath(actor, in)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.EnsureNotNegative(ctx, clientID); err != nil {
		return nil, err
	}
	if direct {
		if err := s.ledger.EnsureNotNegative(ctx, actor.ID); err != nil {
			return nil, err
		}
	}

	var slot models.Slot
	if err := s.db.WithContext(ctx).First(&slot, "id = ?", in.SlotID).Error; err != nil {
		return nil, notFound(err, "slot")
	}
	studio, err := s.studios.studio(ctx, slot.StudioID)
	if err != nil {
		return nil, err
	}
	if studio.Owner.IsSuspended {
		return nil, apperr.New(apperr.AccountSuspended, "this studio is suspended and cannot take bookings")
	}

	start, end := slot.StartTime, slot.EndTime
	if in.StartTime != "" {
		if start, end, err = matcher.ValidateRange(in.StartTime, in.EndTime); err != nil {
			return nil, err
		}
	}
	startsAt, endsAt, err := sessionTimes(s.policy, slot.Date, start, end)
	if err != nil {
		return nil, err
	}
	if start < slot.StartTime || end > slot.EndTime {
		return nil, apperr.Newf(apperr.ValidationError,
			"%s-%s is outside the slot's %s-%s", start, end, slot.StartTime, slot.EndTime)
	}
	if !startsAt.After(s.now()) {
		return nil, apperr.New(apperr.ValidationError, "sessions in the past cannot be booked")
	}

	var instructor models.InstructorProfile
	if err := s.db.WithContext(ctx).First(&instructor, "user_id = ?", in.InstructorID).Error; err != nil {
		return nil, notFound(err, "instructor")
	}

	if err := s.matcher.EnsureNoConflict(ctx, in.InstructorID, slot.Date, start); err != nil {
		return nil, err
	}
	location := in.Location
	if location == "" {
		location = studio.Location
	}
	err = s.matcher.Check(ctx, matcher.Request{
		InstructorID: in.InstructorID,
		Date:         slot.Date,
		StartTime:    start,
		EndTime:      end,
		Location:     location,
	})
	if err != nil {
		return nil, err
	}

	pb, err := pricing.Quote(s.pricing, pricing.Input{
		Studio:     studio,
		Instructor: instructor,
		Equipment:  in.Equipment,
		Quantity:   in.Quantity,
		Duration:   endsAt.Sub(startsAt),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, err.Error(), err)
	}

	ext, err := s.alloc.Extract(ctx, slot.ID, in.Equipment, in.Quantity)
	if err != nil {
		return nil, err
	}
	if start != slot.StartTime || end != slot.EndTime {
		fragments, err := s.alloc.Split(ctx, ext.Slot.ID, start, end)
		if err != nil {
			return nil, s.undoCreate(ctx, err, clientID, decimal.Zero, ext, uuid.Nil)
		}
		for _, f := range fragments {
			ext.Fragments = append(ext.Fragments, f.ID)
		}
	}
	pb.Equipment = ext.Equipment

	b := models.Booking{
		ID:            uuid.New(),
		ClientID:      clientID,
		InstructorID:  in.InstructorID,
		StudioID:      studio.ID,
		SlotID:        ext.Slot.ID,
		BookedSlotIDs: datatypes.NewJSONType([]uuid.UUID{ext.Slot.ID}),
		Date:          slot.Date,
		StartTime:     start,
		EndTime:       end,
		StartsAt:      startsAt,
		EndsAt:        endsAt,
		Location:      location,
		Equipment:     ext.Equipment,
		Quantity:      in.Quantity,
	}

	wallet, err := s.ledger.Balance(ctx, clientID)
	if err != nil {
		return nil, s.undoCreate(ctx, err, clientID, decimal.Zero, ext, b.ID)
	}
	deduction, final := pricing.ApplyWallet(&pb, wallet.AvailableBalance)
	if deduction.IsPositive() {
		entry := ledger.Entry{Reason: "booking_wallet_deduction", BookingID: &b.ID}
		if err := s.ledger.Debit(ctx, clientID, deduction, entry, true); err != nil {
			return nil, s.undoCreate(ctx, err, clientID, decimal.Zero, ext, b.ID)
		}
	}

	b.TotalPrice = final
	b.PriceBreakdown = datatypes.NewJSONType(pb)
	now := s.now()
	if direct {
		// Earnings are only held once the client has paid; a remaining
		// balance is settled later by payment proof.
		b.Status = models.StatusApproved
		b.EarningsHeld = !final.IsPositive()
	} else {
		b.Status = models.StatusPending
		if final.IsPositive() {
			expires := now.Add(s.policy.PaymentHold)
			b.ExpiresAt = &expires
		}
	}

	if err := s.db.WithContext(ctx).Create(&b).Error; err != nil {
		return nil, s.undoCreate(ctx, fmt.Errorf("insert booking: %w", err), clientID, deduction, ext, b.ID)
	}
	if b.EarningsHeld {
		if err := s.holdEarnings(ctx, &b, studio.OwnerID); err != nil {
			return &b, err
		}
	}

	s.log.WithFields(logrus.Fields{
		"booking_id": b.ID, "client_id": clientID, "instructor_id": in.InstructorID,
		"status": b.Status, "total": final.String(), "wallet_deduction": deduction.String(),
	}).Info("booking created")
	s.announce(&b, notifications.BookingCreated, studio.OwnerID)
	return &b, nil
}

// bookingPath resolves who the client is and whether the booking skips
// approval.
func bookingPath(actor Actor, in CreateBookingInput) (uuid.UUID, bool, error) {
	switch actor.Role {
	case models.RoleCustomer:
		return actor.ID, false, nil
	case models.RoleInstructor:
		if in.InstructorID != actor.ID {
			return uuid.Nil, false, apperr.New(apperr.Unauthorized, "instructors can only book their own sessions")
		}
		if in.ClientID == uuid.Nil {
			return uuid.Nil, false, apperr.New(apperr.ValidationError, "client_id is required for a direct session")
		}
		return in.ClientID, true, nil
	}
	return uuid.Nil, false, apperr.New(apperr.Unauthorized, "only clients and instructors can create bookings")
}

// undoCreate compensates a failed CreateBooking: the wallet deduction is
// credited back and the extraction restored. A failed compensation is fatal.
func (s *BookingService) undoCreate(ctx context.Context, cause error, clientID uuid.UUID, deduction decimal.Decimal, ext *allocator.Extraction, bookingID uuid.UUID) error {
	fields := logrus.Fields{"client_id": clientID, "slot_id": ext.SourceID, "booking_id": bookingID}
	s.log.WithError(cause).WithFields(fields).Warn("booking failed, compensating")

	if deduction.IsPositive() {
		entry := ledger.Entry{Reason: "booking_rollback", BookingID: &bookingID}
		if err := s.ledger.Credit(ctx, clientID, deduction, entry); err != nil {
			return s.ledger.Fatal(ctx, "wallet deduction rollback failed", errors.Join(cause, err), fields)
		}
	}
	if err := s.alloc.Restore(ctx, ext); err != nil {
		return errors.Join(err, cause)
	}
	return cause
}

// holdEarnings parks the instructor's and the studio's share in their pending
// balances. The booking row already says the earnings are held, so a failure
// here needs reconciliation.
func (s *BookingService) holdEarnings(ctx context.Context, b *models.Booking, ownerID uuid.UUID) error {
	pb := b.PriceBreakdown.Data()
	entry := ledger.Entry{Reason: "booking_earnings", BookingID: &b.ID}
	for _, share := range []struct {
		account uuid.UUID
		amount  decimal.Decimal
	}{
		{b.InstructorID, pb.InstructorPortion()},
		{ownerID, pb.StudioPortion()},
	} {
		if !share.amount.IsPositive() {
			continue
		}
		if err := s.ledger.Hold(ctx, share.account, share.amount, entry); err != nil {
			return s.ledger.Fatal(ctx, "earnings hold failed", err, logrus.Fields{
				"booking_id": b.ID, "account": share.account, "amount": share.amount.String(),
			})
		}
	}
	return nil
}

// releaseEarnings drops held earnings of a booking that will not complete.
func (s *BookingService) releaseEarnings(ctx context.Context, b *models.Booking, ownerID uuid.UUID) error {
	pb := b.PriceBreakdown.Data()
	entry := ledger.Entry{Reason: "booking_cancelled", BookingID: &b.ID}
	for _, share := range []struct {
		account uuid.UUID
		amount  decimal.Decimal
	}{
		{b.InstructorID, pb.InstructorPortion()},
		{ownerID, pb.StudioPortion()},
	} {
		if !share.amount.IsPositive() {
			continue
		}
		if err := s.ledger.ReleaseHold(ctx, share.account, share.amount, entry); err != nil {
			return s.ledger.Fatal(ctx, "earnings release failed", err, logrus.Fields{
				"booking_id": b.ID, "account": share.account, "amount": share.amount.String(),
			})
		}
	}
	return nil
}

func (s *BookingService) announce(b *models.Booking, kind notifications.Kind, ownerID uuid.UUID) {
	fields := map[string]string{
		"booking_id": b.ID.String(),
		"date":       b.Date,
		"start_time": b.StartTime,
		"end_time":   b.EndTime,
		"equipment":  b.Equipment,
		"quantity":   fmt.Sprint(b.Quantity),
		"status":     string(b.Status),
		"total":      b.TotalPrice.StringFixed(2),
	}
	for _, to := range []uuid.UUID{b.ClientID, b.InstructorID, ownerID} {
		s.notify.Dispatch(notifications.Notification{Recipient: to, Kind: kind, Fields: fields})
	}
}
