package allocator

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/matcher"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Split narrows an extracted slot to [start, end). The leftover time before
// and after becomes available fragments holding the same units.
func (s *Service) Split(ctx context.Context, extractedID uuid.UUID, start, end string) ([]models.Slot, error) {
	var slot models.Slot
	err := s.db.WithContext(ctx).First(&slot, "id = ?", extractedID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "slot not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load slot: %w", err)
	}
	if start, end, err = matcher.ValidateRange(start, end); err != nil {
		return nil, err
	}
	if start < slot.StartTime || end > slot.EndTime {
		return nil, apperr.Newf(apperr.ValidationError,
			"%s-%s is outside the slot's %s-%s", start, end, slot.StartTime, slot.EndTime)
	}
	if start == slot.StartTime && end == slot.EndTime {
		return nil, nil
	}

	var fragments []models.Slot
	if start > slot.StartTime {
		fragments = append(fragments, fragment(slot, slot.StartTime, start))
	}
	if end < slot.EndTime {
		fragments = append(fragments, fragment(slot, end, slot.EndTime))
	}

	fields := logrus.Fields{"slot_id": extractedID, "start": start, "end": end}
	for i := range fragments {
		if err := s.db.WithContext(ctx).Create(&fragments[i]).Error; err != nil {
			s.log.WithError(err).WithFields(fields).Warn("fragment insert failed, removing fragments")
			if derr := s.dropFragments(ctx, fragments[:i]); derr != nil {
				return nil, s.escalate.Fatal(ctx, "fragment cleanup failed", errors.Join(err, derr), fields)
			}
			return nil, fmt.Errorf("insert fragment: %w", err)
		}
	}

	res := s.db.WithContext(ctx).Model(&models.Slot{}).
		Where("id = ? AND version = ?", slot.ID, slot.Version).
		Updates(map[string]any{
			"start_time": start,
			"end_time":   end,
			"version":    slot.Version + 1,
		})
	err = res.Error
	if err == nil && res.RowsAffected == 0 {
		err = apperr.New(apperr.SlotConflict, "slot changed while splitting")
	}
	if err != nil {
		if derr := s.dropFragments(ctx, fragments); derr != nil {
			return nil, s.escalate.Fatal(ctx, "fragment cleanup failed", errors.Join(err, derr), fields)
		}
		return nil, err
	}
	return fragments, nil
}

func fragment(slot models.Slot, start, end string) models.Slot {
	return models.Slot{
		StudioID:     slot.StudioID,
		Date:         slot.Date,
		StartTime:    start,
		EndTime:      end,
		Equipment:    slot.Equipment,
		Quantity:     slot.Quantity,
		IsAvailable:  true,
		SourceSlotID: &slot.ID,
	}
}

func (s *Service) dropFragments(ctx context.Context, fragments []models.Slot) error {
	if len(fragments) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(fragments))
	for i, f := range fragments {
		ids[i] = f.ID
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&models.Slot{}).Error
}
