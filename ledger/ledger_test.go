package ledger

import (
	"context"
	"testing"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/database/dbtest"
	"github.com/anjiri1684/studio_booking/logger"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *notifications.Recorder) {
	t.Helper()
	db := dbtest.Open(t)
	rec := &notifications.Recorder{}
	return NewService(db, logger.Discard(), rec), db, rec
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func requireBalance(t *testing.T, s *Service, account uuid.UUID, available, pending int64) {
	t.Helper()
	w, err := s.Balance(context.Background(), account)
	require.NoError(t, err)
	assert.True(t, dec(available).Equal(w.AvailableBalance), "available: want %d got %s", available, w.AvailableBalance)
	assert.True(t, dec(pending).Equal(w.PendingBalance), "pending: want %d got %s", pending, w.PendingBalance)
}

func TestCreditCreatesWallet(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	acct := uuid.New()

	require.NoError(t, s.Credit(ctx, acct, dec(250), Entry{Reason: "top_up"}))
	require.NoError(t, s.Credit(ctx, acct, dec(50), Entry{Reason: "top_up"}))

	requireBalance(t, s, acct, 300, 0)
	entries, err := s.Entries(ctx, acct, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestBalanceOfUnknownAccountIsZero(t *testing.T) {
	s, _, _ := newTestService(t)
	requireBalance(t, s, uuid.New(), 0, 0)
}

func TestDebitWithFloor(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	acct := uuid.New()
	require.NoError(t, s.Credit(ctx, acct, dec(100), Entry{Reason: "top_up"}))

	err := s.Debit(ctx, acct, dec(150), Entry{Reason: "booking_wallet"}, true)
	assert.True(t, apperr.Is(err, apperr.InsufficientFunds))
	requireBalance(t, s, acct, 100, 0)

	require.NoError(t, s.Debit(ctx, acct, dec(100), Entry{Reason: "booking_wallet"}, true))
	requireBalance(t, s, acct, 0, 0)
}

func TestDebitWithoutFloorGoesNegative(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	acct := uuid.New()

	require.NoError(t, s.Debit(ctx, acct, dec(500), Entry{Reason: "penalty"}, false))
	requireBalance(t, s, acct, -500, 0)

	err := s.EnsureNotNegative(ctx, acct)
	assert.True(t, apperr.Is(err, apperr.NegativeBalanceRestriction))
}

func TestRejectsNonPositiveAmounts(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	acct := uuid.New()

	assert.True(t, apperr.Is(s.Credit(ctx, acct, decimal.Zero, Entry{}), apperr.ValidationError))
	assert.True(t, apperr.Is(s.Debit(ctx, acct, dec(-5), Entry{}, false), apperr.ValidationError))
}

func TestTransferConservesValue(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()
	require.NoError(t, s.Credit(ctx, from, dec(1000), Entry{Reason: "top_up"}))
	require.NoError(t, s.Hold(ctx, to, dec(300), Entry{Reason: "earnings_hold"}))

	before := total(t, s, from).Add(total(t, s, to))
	require.NoError(t, s.Transfer(ctx, from, to, dec(400), Entry{Reason: "penalty"}, false))
	after := total(t, s, from).Add(total(t, s, to))

	assert.True(t, before.Equal(after))
	requireBalance(t, s, from, 600, 0)
	requireBalance(t, s, to, 400, 300)
}

func TestTransferCompensatesFailedCredit(t *testing.T) {
	s, db, _ := newTestService(t)
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()
	require.NoError(t, s.Credit(ctx, from, dec(1000), Entry{Reason: "top_up"}))

	// The recipient has no wallet yet, so failing wallet inserts breaks only the credit leg.
	restore := dbtest.FailCreates(t, db, "wallets")
	err := s.Transfer(ctx, from, to, dec(400), Entry{Reason: "penalty"}, false)
	restore()

	require.Error(t, err)
	assert.False(t, apperr.Is(err, apperr.FatalInconsistency))
	requireBalance(t, s, from, 1000, 0)
	requireBalance(t, s, to, 0, 0)
}

func TestTransferFatalWhenCompensationFails(t *testing.T) {
	s, db, rec := newTestService(t)
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()
	require.NoError(t, s.Credit(ctx, from, dec(1000), Entry{Reason: "top_up"}))
	require.NoError(t, s.Credit(ctx, to, dec(1), Entry{Reason: "top_up"}))

	// Only the debit leg gets through.
	restore := dbtest.FailUpdatesAfter(t, db, "wallets", 1)
	err := s.Transfer(ctx, from, to, dec(400), Entry{Reason: "penalty"}, false)
	restore()

	assert.True(t, apperr.Is(err, apperr.FatalInconsistency))
	assert.Equal(t, []notifications.Kind{notifications.FatalInconsistency}, rec.Kinds(uuid.Nil))
	requireBalance(t, s, from, 600, 0)
	requireBalance(t, s, to, 1, 0)
}

func TestHoldMatureRelease(t *testing.T) {
	s, _, _ := newTestService(t)
	ctx := context.Background()
	acct := uuid.New()

	require.NoError(t, s.Hold(ctx, acct, dec(800), Entry{Reason: "earnings_hold"}))
	requireBalance(t, s, acct, 0, 800)

	require.NoError(t, s.Mature(ctx, acct, dec(500), Entry{Reason: "earnings_mature"}))
	requireBalance(t, s, acct, 500, 300)

	err := s.ReleaseHold(ctx, acct, dec(400), Entry{Reason: "earnings_release"})
	assert.True(t, apperr.Is(err, apperr.InsufficientFunds))

	require.NoError(t, s.ReleaseHold(ctx, acct, dec(300), Entry{Reason: "earnings_release"}))
	requireBalance(t, s, acct, 500, 0)

	entries, err := s.Entries(ctx, acct, 0)
	require.NoError(t, err)
	kinds := map[models.EntryKind]int{}
	for _, e := range entries {
		kinds[e.Kind]++
	}
	assert.Equal(t, map[models.EntryKind]int{models.EntryHold: 1, models.EntryMature: 1, models.EntryReleaseHold: 1}, kinds)
}

func total(t *testing.T, s *Service, acct uuid.UUID) decimal.Decimal {
	t.Helper()
	w, err := s.Balance(context.Background(), acct)
	require.NoError(t, err)
	return w.Total()
}
