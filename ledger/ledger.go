// Package ledger owns account balances. Every balance change is a single-row
// atomic increment; no caller writes balance fields directly.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Entry describes why money moved. It is copied onto the audit trail.
type Entry struct {
	Reason    string
	BookingID *uuid.UUID
	PayoutID  *uuid.UUID
	Memo      string
}

type Service struct {
	db     *gorm.DB
	log    *logrus.Logger
	notify notifications.Dispatcher
	now    func() time.Time
}

func NewService(db *gorm.DB, log *logrus.Logger, notify notifications.Dispatcher) *Service {
	return &Service{
		db:     db,
		log:    log,
		notify: notify,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the time source, for tests and replays.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Balance returns the account's wallet; an account that never held money has
// a zero wallet.
func (s *Service) Balance(ctx context.Context, account uuid.UUID) (models.Wallet, error) {
	var w models.Wallet
	err := s.db.WithContext(ctx).First(&w, "account_id = ?", account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Wallet{AccountID: account}, nil
	}
	if err != nil {
		return w, fmt.Errorf("load wallet: %w", err)
	}
	return w, nil
}

// EnsureNotNegative enforces the negative-balance policy: an account in debt
// may not start new bookings or payouts until it settles.
func (s *Service) EnsureNotNegative(ctx context.Context, account uuid.UUID) error {
	w, err := s.Balance(ctx, account)
	if err != nil {
		return err
	}
	if w.AvailableBalance.IsNegative() {
		return apperr.Newf(apperr.NegativeBalanceRestriction,
			"your balance is %s; settle it before continuing", w.AvailableBalance.StringFixed(2))
	}
	return nil
}

func (s *Service) ensureWallet(ctx context.Context, account uuid.UUID) error {
	w := models.Wallet{AccountID: account}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&w).Error
	if err != nil {
		return fmt.Errorf("ensure wallet: %w", err)
	}
	return nil
}

func (s *Service) Credit(ctx context.Context, account uuid.UUID, amount decimal.Decimal, e Entry) error {
	if err := positive(amount); err != nil {
		return err
	}
	err := s.increment(ctx, account, map[string]any{
		"available_balance": gorm.Expr("available_balance + ?", amount),
	})
	if err != nil {
		return fmt.Errorf("credit: %w", err)
	}
	s.record(ctx, account, models.EntryCredit, amount, e)
	return nil
}

// Debit takes amount from the available balance. With enforceFloor the debit
// fails with InsufficientFunds instead of taking the balance below zero.
func (s *Service) Debit(ctx context.Context, account uuid.UUID, amount decimal.Decimal, e Entry, enforceFloor bool) error {
	if err := positive(amount); err != nil {
		return err
	}
	values := map[string]any{
		"available_balance": gorm.Expr("available_balance - ?", amount),
	}
	if enforceFloor {
		n, err := s.update(ctx, account, values, "available_balance >= ?", amount)
		if err != nil {
			return fmt.Errorf("debit: %w", err)
		}
		if n == 0 {
			return apperr.Newf(apperr.InsufficientFunds, "insufficient balance for %s", amount.StringFixed(2))
		}
	} else if err := s.increment(ctx, account, values); err != nil {
		return fmt.Errorf("debit: %w", err)
	}
	s.record(ctx, account, models.EntryDebit, amount, e)
	return nil
}

// Transfer debits from and credits to. The store gives no transaction across
// the two calls, so a failed credit is compensated by crediting from back; if
// that fails too the transfer is a FatalInconsistency.
func (s *Service) Transfer(ctx context.Context, from, to uuid.UUID, amount decimal.Decimal, e Entry, enforceFloor bool) error {
	if err := s.Debit(ctx, from, amount, e, enforceFloor); err != nil {
		return err
	}
	err := s.Credit(ctx, to, amount, e)
	if err == nil {
		return nil
	}

	fields := logrus.Fields{"from": from, "to": to, "amount": amount.String(), "reason": e.Reason}
	s.log.WithError(err).WithFields(fields).Warn("transfer credit failed, compensating debit")

	comp := e
	comp.Reason = e.Reason + "_compensation"
	if cerr := s.Credit(ctx, from, amount, comp); cerr != nil {
		return s.Fatal(ctx, "transfer compensation failed", errors.Join(err, cerr), fields)
	}
	return fmt.Errorf("transfer credit: %w", err)
}

// Hold credits the pending balance. Held funds become spendable through Mature.
func (s *Service) Hold(ctx context.Context, account uuid.UUID, amount decimal.Decimal, e Entry) error {
	if err := positive(amount); err != nil {
		return err
	}
	err := s.increment(ctx, account, map[string]any{
		"pending_balance": gorm.Expr("pending_balance + ?", amount),
	})
	if err != nil {
		return fmt.Errorf("hold: %w", err)
	}
	s.record(ctx, account, models.EntryHold, amount, e)
	return nil
}

// Mature moves amount from pending to available in one row update.
func (s *Service) Mature(ctx context.Context, account uuid.UUID, amount decimal.Decimal, e Entry) error {
	if err := positive(amount); err != nil {
		return err
	}
	n, err := s.update(ctx, account, map[string]any{
		"pending_balance":   gorm.Expr("pending_balance - ?", amount),
		"available_balance": gorm.Expr("available_balance + ?", amount),
	}, "pending_balance >= ?", amount)
	if err != nil {
		return fmt.Errorf("mature: %w", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.InsufficientFunds, "pending balance below %s", amount.StringFixed(2))
	}
	s.record(ctx, account, models.EntryMature, amount, e)
	return nil
}

// ReleaseHold drops held funds that will never mature.
func (s *Service) ReleaseHold(ctx context.Context, account uuid.UUID, amount decimal.Decimal, e Entry) error {
	if err := positive(amount); err != nil {
		return err
	}
	n, err := s.update(ctx, account, map[string]any{
		"pending_balance": gorm.Expr("pending_balance - ?", amount),
	}, "pending_balance >= ?", amount)
	if err != nil {
		return fmt.Errorf("release hold: %w", err)
	}
	if n == 0 {
		return apperr.Newf(apperr.InsufficientFunds, "pending balance below %s", amount.StringFixed(2))
	}
	s.record(ctx, account, models.EntryReleaseHold, amount, e)
	return nil
}

// Entries lists the newest audit rows of an account.
func (s *Service) Entries(ctx context.Context, account uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []models.LedgerEntry
	err := s.db.WithContext(ctx).
		Where("account_id = ?", account).
		Order("created_at desc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// Fatal logs a broken compensation for operator reconciliation, raises an ops
// notification and returns the FatalInconsistency error callers must surface.
func (s *Service) Fatal(ctx context.Context, msg string, err error, fields logrus.Fields) error {
	s.log.WithContext(ctx).WithError(err).WithFields(fields).WithField("reconcile", true).Error(msg)
	s.notify.Dispatch(notifications.Notification{
		Kind:   notifications.FatalInconsistency,
		Fields: map[string]string{"message": msg, "error": err.Error()},
	})
	return apperr.Wrap(apperr.FatalInconsistency, msg, err)
}

// increment applies an unguarded update, creating the wallet on first use.
func (s *Service) increment(ctx context.Context, account uuid.UUID, values map[string]any) error {
	n, err := s.update(ctx, account, values, "")
	if err != nil || n > 0 {
		return err
	}
	if err := s.ensureWallet(ctx, account); err != nil {
		return err
	}
	n, err = s.update(ctx, account, values, "")
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("wallet %s not updated", account)
	}
	return nil
}

func (s *Service) update(ctx context.Context, account uuid.UUID, values map[string]any, guard string, args ...any) (int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Wallet{}).Where("account_id = ?", account)
	if guard != "" {
		q = q.Where(guard, args...)
	}
	res := q.Updates(values)
	return res.RowsAffected, res.Error
}

func (s *Service) record(ctx context.Context, account uuid.UUID, kind models.EntryKind, amount decimal.Decimal, e Entry) {
	row := models.LedgerEntry{
		AccountID: account,
		Kind:      kind,
		Amount:    amount,
		Reason:    e.Reason,
		BookingID: e.BookingID,
		PayoutID:  e.PayoutID,
		Memo:      e.Memo,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"account": account, "kind": kind, "amount": amount.String(),
		}).Error("failed to write ledger entry")
	}
}

func positive(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.New(apperr.ValidationError, "amount must be positive")
	}
	return nil
}
