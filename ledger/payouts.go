package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var validate = validator.New()

type PayoutInput struct {
	PayeeID        uuid.UUID       `validate:"required"`
	PayeeRole      models.Role     `validate:"required,oneof=customer instructor studio"`
	Amount         decimal.Decimal `validate:"-"`
	Method         string          `validate:"required,max=50"`
	AccountDetails string          `validate:"required"`
}

// RequestPayout debits the payee first and then records the request. If the
// insert fails the debit is credited back.
func (s *Service) RequestPayout(ctx context.Context, in PayoutInput) (*models.PayoutRequest, error) {
	if err := validate.Struct(in); err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, "invalid payout request", err)
	}
	if err := positive(in.Amount); err != nil {
		return nil, err
	}
	if err := s.EnsureNotNegative(ctx, in.PayeeID); err != nil {
		return nil, err
	}

	payout := models.PayoutRequest{
		ID:             uuid.New(),
		PayeeID:        in.PayeeID,
		PayeeRole:      in.PayeeRole,
		Amount:         in.Amount,
		Method:         in.Method,
		AccountDetails: in.AccountDetails,
		Status:         models.PayoutPending,
		RequestedAt:    s.now(),
	}
	entry := Entry{Reason: "payout_request", PayoutID: &payout.ID}
	if err := s.Debit(ctx, in.PayeeID, in.Amount, entry, true); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Create(&payout).Error; err != nil {
		fields := logrus.Fields{"payee": in.PayeeID, "amount": in.Amount.String(), "payout": payout.ID}
		s.log.WithError(err).WithFields(fields).Warn("payout insert failed, rolling back debit")
		if cerr := s.Credit(ctx, in.PayeeID, in.Amount, Entry{Reason: "payout_rollback", PayoutID: &payout.ID}); cerr != nil {
			return nil, s.Fatal(ctx, "payout debit rollback failed", errors.Join(err, cerr), fields)
		}
		return nil, fmt.Errorf("create payout request: %w", err)
	}

	s.notify.Dispatch(notifications.Notification{
		Recipient: in.PayeeID,
		Kind:      notifications.PayoutRequested,
		Fields:    map[string]string{"payout_id": payout.ID.String(), "amount": in.Amount.StringFixed(2)},
	})
	return &payout, nil
}

// ProcessPayout settles a pending request as paid or rejected. A rejected
// request returns the amount to the payee.
func (s *Service) ProcessPayout(ctx context.Context, id uuid.UUID, decision models.PayoutStatus, notes string) (*models.PayoutRequest, error) {
	if decision != models.PayoutPaid && decision != models.PayoutRejected {
		return nil, apperr.New(apperr.ValidationError, "decision must be paid or rejected")
	}

	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.PayoutRequest{}).
		Where("id = ? AND status = ?", id, models.PayoutPending).
		Updates(map[string]any{"status": decision, "admin_notes": notes, "processed_at": now})
	if res.Error != nil {
		return nil, fmt.Errorf("process payout: %w", res.Error)
	}

	var payout models.PayoutRequest
	if err := s.db.WithContext(ctx).First(&payout, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "payout request not found")
		}
		return nil, err
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Newf(apperr.InvalidTransition, "payout request is already %s", payout.Status)
	}

	if decision == models.PayoutRejected {
		if err := s.Credit(ctx, payout.PayeeID, payout.Amount, Entry{Reason: "payout_rejected", PayoutID: &payout.ID}); err != nil {
			return nil, s.Fatal(ctx, "payout rejection refund failed", err, logrus.Fields{
				"payee": payout.PayeeID, "amount": payout.Amount.String(), "payout": payout.ID,
			})
		}
	}

	s.notify.Dispatch(notifications.Notification{
		Recipient: payout.PayeeID,
		Kind:      notifications.PayoutProcessed,
		Fields: map[string]string{
			"payout_id": payout.ID.String(),
			"amount":    payout.Amount.StringFixed(2),
			"status":    string(payout.Status),
			"notes":     notes,
		},
	})
	return &payout, nil
}

func (s *Service) ListPayouts(ctx context.Context, payee uuid.UUID) ([]models.PayoutRequest, error) {
	var out []models.PayoutRequest
	err := s.db.WithContext(ctx).Where("payee_id = ?", payee).Order("requested_at desc").Find(&out).Error
	return out, err
}

func (s *Service) ListPendingPayouts(ctx context.Context) ([]models.PayoutRequest, error) {
	var out []models.PayoutRequest
	err := s.db.WithContext(ctx).Where("status = ?", models.PayoutPending).Order("requested_at asc").Find(&out).Error
	return out, err
}

// TopUp credits an account from outside the platform; it is also how a
// negative balance gets settled.
func (s *Service) TopUp(ctx context.Context, account uuid.UUID, amount decimal.Decimal, memo string) (models.Wallet, error) {
	if err := s.Credit(ctx, account, amount, Entry{Reason: "top_up", Memo: memo}); err != nil {
		return models.Wallet{}, err
	}
	return s.Balance(ctx, account)
}
