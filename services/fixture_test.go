package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/anjiri1684/studio_booking/allocator"
	config "github.com/anjiri1684/studio_booking/configs"
	"github.com/anjiri1684/studio_booking/database/dbtest"
	"github.com/anjiri1684/studio_booking/ledger"
	"github.com/anjiri1684/studio_booking/logger"
	"github.com/anjiri1684/studio_booking/matcher"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const sessionDate = "2030-06-03"

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type fixture struct {
	ctx      context.Context
	db       *gorm.DB
	policy   config.Policy
	clock    *clock
	notes    *notifications.Recorder
	ledger   *ledger.Service
	studios  *StudioService
	bookings *BookingService

	client, instructor, owner, admin models.User
	studio                           models.StudioProfile
	bucket                           models.Slot

	// startsAt is when the 09:00 session on sessionDate begins.
	startsAt time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	log := logger.Discard()
	policy := config.DefaultPolicy()
	clk := &clock{t: time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)}
	notes := &notifications.Recorder{}

	wallets := ledger.NewService(db, log, notes).WithClock(clk.now)
	studios := NewStudioService(db, log, policy, notes).WithClock(clk.now)
	bookings := NewBookingService(BookingDeps{
		DB:      db,
		Log:     log,
		Policy:  policy,
		Ledger:  wallets,
		Matcher: matcher.NewService(db, matcher.Policy{AllowWhenNoWindows: policy.AllowWhenNoWindows}),
		Alloc:   allocator.NewService(db, log, wallets),
		Studios: studios,
		Notify:  notes,
	}).WithClock(clk.now)

	f := &fixture{
		ctx:      context.Background(),
		db:       db,
		policy:   policy,
		clock:    clk,
		notes:    notes,
		ledger:   wallets,
		studios:  studios,
		bookings: bookings,
	}
	f.client = f.user(t, models.RoleCustomer)
	f.instructor = f.user(t, models.RoleInstructor)
	f.owner = f.user(t, models.RoleStudio)
	f.admin = f.user(t, models.RoleAdmin)

	require.NoError(t, db.Create(&models.InstructorProfile{
		UserID:   f.instructor.ID,
		BaseRate: decimal.NewFromInt(300),
		Rates:    datatypes.NewJSONType(models.RateCard{}),
	}).Error)

	f.studio = models.StudioProfile{
		OwnerID:    f.owner.ID,
		Name:       "Core Pilates",
		Location:   "BGC - High Street",
		HourlyRate: decimal.NewFromInt(400),
		EquipmentPrices: datatypes.NewJSONType(models.RateCard{
			{Equipment: "Reformer", Rate: decimal.NewFromInt(500)},
		}),
	}
	require.NoError(t, db.Create(&f.studio).Error)

	f.bucket = bucket(f.studio.ID, sessionDate, "09:00", "10:00", models.Inventory{{Name: "Reformer", Count: 5}})
	require.NoError(t, db.Create(&f.bucket).Error)

	startsAt, _, err := sessionTimes(policy, sessionDate, "09:00", "10:00")
	require.NoError(t, err)
	f.startsAt = startsAt
	return f
}

func (f *fixture) user(t *testing.T, role models.Role) models.User {
	t.Helper()
	u := models.User{FullName: string(role), Email: fmt.Sprintf("%s-%s@example.com", role, uuid.NewString()[:8]), Role: role, IsActive: true}
	require.NoError(t, f.db.Create(&u).Error)
	return u
}

func as(u models.User) Actor { return Actor{ID: u.ID, Role: u.Role} }

func (f *fixture) at(t time.Time) { f.clock.t = t }

func (f *fixture) topUp(t *testing.T, account uuid.UUID, amount int64) {
	t.Helper()
	_, err := f.ledger.TopUp(f.ctx, account, decimal.NewFromInt(amount), "test")
	require.NoError(t, err)
}

func (f *fixture) book(t *testing.T) *models.Booking {
	t.Helper()
	b, err := f.bookings.CreateBooking(f.ctx, as(f.client), CreateBookingInput{
		SlotID:       f.bucket.ID,
		InstructorID: f.instructor.ID,
		Equipment:    "Reformer",
		Quantity:     1,
	})
	require.NoError(t, err)
	return b
}

// approved books, pays and approves a session at approveAt.
func (f *fixture) approved(t *testing.T, approveAt time.Time) *models.Booking {
	t.Helper()
	f.at(approveAt)
	b := f.book(t)
	_, err := f.bookings.SubmitPaymentProof(f.ctx, as(f.client), b.ID, PaymentProofInput{URL: "https://res.cloudinary.com/demo/proof.jpg"})
	require.NoError(t, err)
	b, err = f.bookings.ApproveBooking(f.ctx, as(f.owner), b.ID)
	require.NoError(t, err)
	return b
}

func (f *fixture) reload(t *testing.T, id uuid.UUID) *models.Booking {
	t.Helper()
	var b models.Booking
	require.NoError(t, f.db.First(&b, "id = ?", id).Error)
	return &b
}

func (f *fixture) balance(t *testing.T, account uuid.UUID) (available, pending string) {
	t.Helper()
	w, err := f.ledger.Balance(f.ctx, account)
	require.NoError(t, err)
	return w.AvailableBalance.StringFixed(2), w.PendingBalance.StringFixed(2)
}

func (f *fixture) bucketCount(t *testing.T) int {
	t.Helper()
	var s models.Slot
	require.NoError(t, f.db.First(&s, "id = ?", f.bucket.ID).Error)
	return s.Inventory().Count("Reformer")
}
