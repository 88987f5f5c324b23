package services

import (
	"testing"
	"time"

	"github.com/anjiri1684/studio_booking/apperr"
	config "github.com/anjiri1684/studio_booking/configs"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestDecideCancellationWindows(t *testing.T) {
	p := config.DefaultPolicy()
	start := time.Date(2030, 6, 3, 1, 0, 0, 0, time.UTC)
	instructor, owner := uuid.New(), uuid.New()
	deduction := decimal.NewFromInt(200)

	proof := "https://res.cloudinary.com/demo/proof.jpg"
	booking := func(approvedAt *time.Time) *models.Booking {
		return &models.Booking{
			InstructorID:    instructor,
			StartsAt:        start,
			TotalPrice:      decimal.NewFromInt(760),
			PaymentProofURL: &proof,
			ApprovedAt:      approvedAt,
			PriceBreakdown: datatypes.NewJSONType(models.PriceBreakdown{
				StudioFee: decimal.NewFromInt(500), InstructorFee: decimal.NewFromInt(300),
				Quantity: 2, WalletDeduction: &deduction,
			}),
		}
	}
	longAgo := start.Add(-72 * time.Hour)

	cases := []struct {
		name     string
		by       models.Role
		at       time.Time
		approved *time.Time
		accept   bool
		status   models.BookingStatus
		refund   string
		penalty  string
		code     apperr.Code
	}{
		{"client exactly 24h before", models.RoleCustomer, start.Add(-24 * time.Hour), &longAgo, false, models.StatusCancelledRefunded, "960", "0", ""},
		{"client 23h59m before", models.RoleCustomer, start.Add(-24*time.Hour + time.Minute), &longAgo, false, models.StatusCancelledCharged, "0", "0", ""},
		{"studio exactly 24h before", models.RoleStudio, start.Add(-24 * time.Hour), &longAgo, false, models.StatusCancelledRefunded, "960", "0", ""},
		{"studio 23h59m before", models.RoleStudio, start.Add(-24*time.Hour + time.Minute), &longAgo, false, models.StatusCancelledRefunded, "960", "1000", ""},
		{"instructor late without consent", models.RoleInstructor, start.Add(-2 * time.Hour), &longAgo, false, "", "", "", apperr.LateCancellationDenied},
		{"instructor late with consent", models.RoleInstructor, start.Add(-2 * time.Hour), &longAgo, true, models.StatusCancelledRefunded, "960", "1000", ""},
		{"instructor late never approved", models.RoleInstructor, start.Add(-2 * time.Hour), nil, false, models.StatusCancelledRefunded, "960", "0", ""},
		{"admin late", models.RoleAdmin, start.Add(-time.Hour), &longAgo, false, models.StatusCancelledRefunded, "960", "0", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := decide(p, booking(tc.approved), tc.by, owner, tc.accept, tc.at)
			if tc.code != "" {
				assert.Equal(t, tc.code, apperr.CodeOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.status, out.status)
			assert.True(t, decimal.RequireFromString(tc.refund).Equal(out.refund), out.refund.String())
			assert.True(t, decimal.RequireFromString(tc.penalty).Equal(out.penalty), out.penalty.String())
		})
	}
}

func TestDecideRefundsOnlyWhatWasCollected(t *testing.T) {
	p := config.DefaultPolicy()
	start := time.Date(2030, 6, 3, 1, 0, 0, 0, time.UTC)
	deduction := decimal.NewFromInt(200)
	b := &models.Booking{
		StartsAt:   start,
		TotalPrice: decimal.NewFromInt(760),
		PriceBreakdown: datatypes.NewJSONType(models.PriceBreakdown{
			StudioFee: decimal.NewFromInt(500), InstructorFee: decimal.NewFromInt(300),
			Quantity: 1, WalletDeduction: &deduction,
		}),
	}

	out, err := decide(p, b, models.RoleInstructor, uuid.New(), false, start.Add(-48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelledRefunded, out.status)
	assert.Equal(t, "200.00", out.refund.StringFixed(2))
}

func TestDecideGracePeriod(t *testing.T) {
	p := config.DefaultPolicy()
	start := time.Date(2030, 6, 3, 1, 0, 0, 0, time.UTC)
	now := start.Add(-2 * time.Hour)
	b := &models.Booking{StartsAt: start, PriceBreakdown: datatypes.NewJSONType(models.PriceBreakdown{
		StudioFee: decimal.NewFromInt(500), Quantity: 1,
	})}

	approved := now.Add(-15 * time.Minute)
	b.ApprovedAt = &approved
	out, err := decide(p, b, models.RoleStudio, uuid.New(), false, now)
	require.NoError(t, err)
	assert.True(t, out.withinGrace)
	assert.True(t, out.penalty.IsZero())
	assert.False(t, out.strike)

	approved = now.Add(-16 * time.Minute)
	out, err = decide(p, b, models.RoleStudio, uuid.New(), false, now)
	require.NoError(t, err)
	assert.False(t, out.withinGrace)
	assert.True(t, out.strike)
}

func TestClientCancellationBoundary(t *testing.T) {
	t.Run("24h before is refunded", func(t *testing.T) {
		f := newFixture(t)
		f.topUp(t, f.client.ID, 200)
		b := f.approved(t, f.startsAt.Add(-48*time.Hour))

		f.at(f.startsAt.Add(-24 * time.Hour))
		b, err := f.bookings.CancelBooking(f.ctx, as(f.client), b.ID, CancelInput{})
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelledRefunded, b.Status)

		available, _ := f.balance(t, f.client.ID)
		assert.Equal(t, "960.00", available)
		_, pending := f.balance(t, f.instructor.ID)
		assert.Equal(t, "0.00", pending)
		assert.False(t, b.EarningsHeld)
		assert.Equal(t, 4, f.bucketCount(t))

		var released models.Slot
		require.NoError(t, f.db.First(&released, "id = ?", b.SlotID).Error)
		assert.True(t, released.IsAvailable)
	})

	t.Run("23h59m before is charged", func(t *testing.T) {
		f := newFixture(t)
		f.topUp(t, f.client.ID, 200)
		b := f.approved(t, f.startsAt.Add(-48*time.Hour))

		f.at(f.startsAt.Add(-24*time.Hour + time.Minute))
		b, err := f.bookings.CancelBooking(f.ctx, as(f.client), b.ID, CancelInput{Reason: "sick"})
		require.NoError(t, err)
		assert.Equal(t, models.StatusCancelledCharged, b.Status)
		require.NotNil(t, b.CancellationReason)
		assert.Equal(t, "sick", *b.CancellationReason)

		available, _ := f.balance(t, f.client.ID)
		assert.Equal(t, "0.00", available)
		_, pending := f.balance(t, f.instructor.ID)
		assert.Equal(t, "300.00", pending)
		assert.True(t, b.EarningsHeld)
	})
}

func TestInstructorLateCancellationPenalty(t *testing.T) {
	f := newFixture(t)
	f.topUp(t, f.client.ID, 200)
	approvedAt := f.startsAt.Add(-2*time.Hour - 20*time.Minute)
	b := f.approved(t, approvedAt)

	f.at(f.startsAt.Add(-2 * time.Hour))
	_, err := f.bookings.CancelBooking(f.ctx, as(f.instructor), b.ID, CancelInput{})
	assert.Equal(t, apperr.LateCancellationDenied, apperr.CodeOf(err))
	assert.Equal(t, models.StatusApproved, f.reload(t, b.ID).Status)

	b, err = f.bookings.CancelBooking(f.ctx, as(f.instructor), b.ID, CancelInput{AcceptPenalty: true})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelledRefunded, b.Status)
	assert.True(t, b.PenaltyProcessed)
	require.NotNil(t, b.CancelledBy)
	assert.Equal(t, models.RoleInstructor, *b.CancelledBy)

	c := b.PriceBreakdown.Data().Cancellation
	require.NotNil(t, c)
	assert.True(t, c.PenaltyProcessed)
	assert.Equal(t, "500.00", c.PenaltyAmount.StringFixed(2))
	assert.False(t, c.WithinGrace)

	available, _ := f.balance(t, f.client.ID)
	assert.Equal(t, "960.00", available)
	available, pending := f.balance(t, f.instructor.ID)
	assert.Equal(t, "-500.00", available)
	assert.Equal(t, "0.00", pending)
	available, pending = f.balance(t, f.owner.ID)
	assert.Equal(t, "500.00", available)
	assert.Equal(t, "0.00", pending)

	assert.Contains(t, f.notes.Kinds(f.instructor.ID), notifications.PenaltyApplied)

	_, err = f.bookings.CancelBooking(f.ctx, as(f.instructor), b.ID, CancelInput{AcceptPenalty: true})
	assert.Equal(t, apperr.AlreadyCancelled, apperr.CodeOf(err))

	// The instructor is now in debt and cannot take payouts.
	assert.Equal(t, apperr.NegativeBalanceRestriction, apperr.CodeOf(f.ledger.EnsureNotNegative(f.ctx, f.instructor.ID)))
}

func TestInstructorCancelsDirectSessionWithinGrace(t *testing.T) {
	f := newFixture(t)
	b, err := f.bookings.CreateBooking(f.ctx, as(f.instructor), CreateBookingInput{
		SlotID: f.bucket.ID, InstructorID: f.instructor.ID, ClientID: f.client.ID, Equipment: "Reformer", Quantity: 1,
	})
	require.NoError(t, err)

	f.at(f.startsAt.Add(-time.Hour))
	b, err = f.bookings.CancelBooking(f.ctx, as(f.instructor), b.ID, CancelInput{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelledRefunded, b.Status)
	assert.False(t, b.PenaltyDue)

	// The client never paid, so there is nothing to refund.
	available, pending := f.balance(t, f.client.ID)
	assert.Equal(t, "0.00", available)
	assert.Equal(t, "0.00", pending)
	available, pending = f.balance(t, f.instructor.ID)
	assert.Equal(t, "0.00", available)
	assert.Equal(t, "0.00", pending)
	available, pending = f.balance(t, f.owner.ID)
	assert.Equal(t, "0.00", available)
	assert.Equal(t, "0.00", pending)
}

func TestCancelDirectSessionRefundsWhatWasPaid(t *testing.T) {
	direct := func(f *fixture) *models.Booking {
		b, err := f.bookings.CreateBooking(f.ctx, as(f.instructor), CreateBookingInput{
			SlotID: f.bucket.ID, InstructorID: f.instructor.ID, ClientID: f.client.ID, Equipment: "Reformer", Quantity: 1,
		})
		require.NoError(t, err)
		return b
	}

	t.Run("part wallet", func(t *testing.T) {
		f := newFixture(t)
		f.topUp(t, f.client.ID, 200)
		b := direct(f)
		assert.False(t, b.EarningsHeld)

		_, err := f.bookings.CancelBooking(f.ctx, as(f.client), b.ID, CancelInput{})
		require.NoError(t, err)
		available, _ := f.balance(t, f.client.ID)
		assert.Equal(t, "200.00", available)
	})

	t.Run("fully wallet paid", func(t *testing.T) {
		f := newFixture(t)
		f.topUp(t, f.client.ID, 1000)
		b := direct(f)
		assert.True(t, b.EarningsHeld)
		_, pending := f.balance(t, f.instructor.ID)
		assert.Equal(t, "300.00", pending)

		_, err := f.bookings.CancelBooking(f.ctx, as(f.client), b.ID, CancelInput{})
		require.NoError(t, err)
		available, _ := f.balance(t, f.client.ID)
		assert.Equal(t, "1000.00", available)
		_, pending = f.balance(t, f.instructor.ID)
		assert.Equal(t, "0.00", pending)
	})

	t.Run("paid by proof", func(t *testing.T) {
		f := newFixture(t)
		b := direct(f)
		_, err := f.bookings.SubmitPaymentProof(f.ctx, as(f.client), b.ID, PaymentProofInput{URL: "https://example.com/p.jpg"})
		require.NoError(t, err)

		_, err = f.bookings.CancelBooking(f.ctx, as(f.client), b.ID, CancelInput{})
		require.NoError(t, err)
		available, _ := f.balance(t, f.client.ID)
		assert.Equal(t, "960.00", available)
		_, pending := f.balance(t, f.owner.ID)
		assert.Equal(t, "0.00", pending)
	})
}

func TestClientWithdrawsPendingBooking(t *testing.T) {
	f := newFixture(t)
	f.topUp(t, f.client.ID, 200)
	b := f.book(t)

	_, err := f.bookings.CancelBooking(f.ctx, as(f.owner), b.ID, CancelInput{})
	assert.Equal(t, apperr.InvalidTransition, apperr.CodeOf(err))

	_, err = f.bookings.SubmitPaymentProof(f.ctx, as(f.client), b.ID, PaymentProofInput{URL: "https://example.com/p.jpg"})
	require.NoError(t, err)
	b, err = f.bookings.CancelBooking(f.ctx, as(f.client), b.ID, CancelInput{})
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelledRefunded, b.Status)

	available, _ := f.balance(t, f.client.ID)
	assert.Equal(t, "960.00", available)
	assert.Equal(t, 4, f.bucketCount(t))

	_, err = f.bookings.CancelBooking(f.ctx, as(f.client), b.ID, CancelInput{})
	assert.Equal(t, apperr.AlreadyCancelled, apperr.CodeOf(err))
}

func TestCancelByStrangerIsUnauthorized(t *testing.T) {
	f := newFixture(t)
	b := f.book(t)
	_, err := f.bookings.CancelBooking(f.ctx, as(f.user(t, models.RoleCustomer)), b.ID, CancelInput{})
	assert.Equal(t, apperr.Unauthorized, apperr.CodeOf(err))
}

func TestStudioThirdStrikeSuspends(t *testing.T) {
	f := newFixture(t)

	for i := 1; i <= 3; i++ {
		approvedAt := f.startsAt.Add(-3 * time.Hour)
		b := f.approved(t, approvedAt)
		f.at(approvedAt.Add(20 * time.Minute))
		_, err := f.bookings.CancelBooking(f.ctx, as(f.owner), b.ID, CancelInput{})
		require.NoError(t, err, "cancellation %d", i)

		var owner models.User
		require.NoError(t, f.db.First(&owner, "id = ?", f.owner.ID).Error)
		assert.Equal(t, i == 3, owner.IsSuspended, "after strike %d", i)
	}

	var strikes int64
	require.NoError(t, f.db.Model(&models.StudioStrike{}).Where("studio_id = ?", f.studio.ID).Count(&strikes).Error)
	assert.EqualValues(t, 3, strikes)
	assert.Contains(t, f.notes.Kinds(f.owner.ID), notifications.StudioSuspended)

	available, _ := f.balance(t, f.owner.ID)
	assert.Equal(t, "-1500.00", available)
	available, _ = f.balance(t, f.instructor.ID)
	assert.Equal(t, "1500.00", available)

	slot := SlotInput{
		StudioID: f.studio.ID, Date: "2030-06-04", StartTime: "09:00", EndTime: "10:00",
		Equipment: models.Inventory{{Name: "Reformer", Count: 2}},
	}
	_, err := f.studios.CreateSlot(f.ctx, as(f.owner), slot)
	assert.Equal(t, apperr.AccountSuspended, apperr.CodeOf(err))

	_, err = f.bookings.CreateBooking(f.ctx, as(f.client), CreateBookingInput{
		SlotID: f.bucket.ID, InstructorID: f.instructor.ID, Equipment: "Reformer", Quantity: 1,
	})
	assert.Equal(t, apperr.AccountSuspended, apperr.CodeOf(err))

	assert.Equal(t, apperr.Unauthorized, apperr.CodeOf(f.studios.ReinstateStudio(f.ctx, as(f.owner), f.studio.ID)))
	f.at(f.clock.now().Add(time.Minute))
	require.NoError(t, f.studios.ReinstateStudio(f.ctx, as(f.admin), f.studio.ID))
	_, err = f.studios.CreateSlot(f.ctx, as(f.owner), slot)
	assert.NoError(t, err)
	assert.Equal(t, apperr.InvalidTransition, apperr.CodeOf(f.studios.ReinstateStudio(f.ctx, as(f.admin), f.studio.ID)))

	// Strikes before reinstatement do not count again.
	f.at(f.clock.now().Add(time.Minute))
	suspended, err := f.studios.RecordStrike(f.ctx, f.studio.ID, uuid.New())
	require.NoError(t, err)
	assert.False(t, suspended)
}
