// Package allocator carves bookable units out of studio slot buckets.
//
// The store offers no transaction across statements, so every bucket change
// is a compare-and-swap on the slot version and every multi-step operation
// carries its own compensation.
package allocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxAttempts = 5

// Escalator records a compensation that could not be applied.
type Escalator interface {
	Fatal(ctx context.Context, msg string, err error, fields logrus.Fields) error
}

// Extraction is the result of taking units out of a bucket. Slot is the
// exclusive record the booking references.
type Extraction struct {
	SourceID  uuid.UUID
	Equipment string
	Quantity  int
	Slot      models.Slot
	Fragments []uuid.UUID
}

type Service struct {
	db       *gorm.DB
	log      *logrus.Logger
	escalate Escalator
}

func NewService(db *gorm.DB, log *logrus.Logger, escalate Escalator) *Service {
	return &Service{db: db, log: log, escalate: escalate}
}

// Extract removes quantity units of equipment from the source bucket and
// inserts an unavailable slot holding exactly those units.
func (s *Service) Extract(ctx context.Context, sourceID uuid.UUID, equipment string, quantity int) (*Extraction, error) {
	if quantity <= 0 {
		return nil, apperr.New(apperr.ValidationError, "quantity must be positive")
	}
	if equipment == "" {
		return nil, apperr.New(apperr.ValidationError, "equipment is required")
	}

	var source models.Slot
	var name string
	err := s.swap(ctx, sourceID, func(slot models.Slot) (models.Inventory, error) {
		if !slot.IsAvailable {
			return nil, apperr.New(apperr.InsufficientInventory, "slot is no longer available")
		}
		inv := slot.Inventory()
		next, err := inv.Take(equipment, quantity)
		if errors.Is(err, models.ErrShortInventory) {
			return nil, apperr.Newf(apperr.InsufficientInventory,
				"only %d %s left in this slot", inv.Count(equipment), equipment)
		}
		source, name = slot, inv.Canonical(equipment)
		return next, err
	})
	if err != nil {
		return nil, err
	}

	extracted := models.Slot{
		StudioID:     source.StudioID,
		Date:         source.Date,
		StartTime:    source.StartTime,
		EndTime:      source.EndTime,
		Equipment:    datatypes.NewJSONType(models.Inventory{{Name: name, Count: quantity}}),
		Quantity:     quantity,
		IsAvailable:  false,
		SourceSlotID: &source.ID,
	}
	if err := s.db.WithContext(ctx).Create(&extracted).Error; err != nil {
		fields := logrus.Fields{"slot_id": sourceID, "equipment": name, "quantity": quantity}
		s.log.WithError(err).WithFields(fields).Warn("extracted slot insert failed, restoring bucket")
		if rerr := s.returnUnits(ctx, sourceID, name, quantity); rerr != nil {
			return nil, s.escalate.Fatal(ctx, "bucket restore failed after extraction", errors.Join(err, rerr), fields)
		}
		return nil, fmt.Errorf("insert extracted slot: %w", err)
	}

	return &Extraction{SourceID: sourceID, Equipment: name, Quantity: quantity, Slot: extracted}, nil
}

// Release makes booked slots bookable again. Slots that are already available
// or hold no units are left alone, so releasing twice changes nothing.
func (s *Service) Release(ctx context.Context, slotIDs []uuid.UUID) (int64, error) {
	if len(slotIDs) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id IN ? AND is_available = ? AND quantity > 0", slotIDs, false).
		Updates(map[string]any{
			"is_available": true,
			"version":      gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("release slots: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Restore undoes an extraction: the units go back to the bucket and the
// extracted slot and its fragments are removed.
func (s *Service) Restore(ctx context.Context, ext *Extraction) error {
	fields := logrus.Fields{"slot_id": ext.SourceID, "extracted_id": ext.Slot.ID, "quantity": ext.Quantity}
	if err := s.returnUnits(ctx, ext.SourceID, ext.Equipment, ext.Quantity); err != nil {
		return s.escalate.Fatal(ctx, "bucket restore failed", err, fields)
	}
	ids := append([]uuid.UUID{ext.Slot.ID}, ext.Fragments...)
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Slot{}).Error; err != nil {
		return s.escalate.Fatal(ctx, "extracted slot cleanup failed", err, fields)
	}
	return nil
}

func (s *Service) returnUnits(ctx context.Context, sourceID uuid.UUID, equipment string, quantity int) error {
	return s.swap(ctx, sourceID, func(slot models.Slot) (models.Inventory, error) {
		return slot.Inventory().Add(equipment, quantity), nil
	})
}

// swap reads the slot, applies change to its inventory and writes the result
// back only if nobody else wrote in between. Lost races are retried.
func (s *Service) swap(ctx context.Context, slotID uuid.UUID, change func(models.Slot) (models.Inventory, error)) error {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var slot models.Slot
		err := s.db.WithContext(ctx).First(&slot, "id = ?", slotID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.New(apperr.NotFound, "slot not found")
		}
		if err != nil {
			return fmt.Errorf("load slot: %w", err)
		}

		next, err := change(slot)
		if err != nil {
			return err
		}
		total := next.Total()
		res := s.db.WithContext(ctx).Model(&models.Slot{}).
			Where("id = ? AND version = ?", slotID, slot.Version).
			Updates(map[string]any{
				"equipment":    datatypes.NewJSONType(next),
				"quantity":     total,
				"is_available": total > 0,
				"version":      slot.Version + 1,
			})
		if res.Error != nil {
			return fmt.Errorf("update slot: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return nil
		}
		s.log.WithFields(logrus.Fields{"slot_id": slotID, "attempt": attempt + 1}).Debug("slot version moved, retrying")
	}
	return apperr.New(apperr.SlotConflict, "slot is being booked by someone else, try again")
}
