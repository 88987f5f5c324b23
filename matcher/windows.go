package matcher

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// WindowInput describes one availability window. Exactly one of Date and
// DayOfWeek is set.
type WindowInput struct {
	Date      *string `json:"date"`
	DayOfWeek *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	StartTime string  `json:"start_time" validate:"required"`
	EndTime   string  `json:"end_time" validate:"required"`
	Location  string  `json:"location" validate:"required,max=255"`
}

func (s *Service) AddWindow(ctx context.Context, instructorID uuid.UUID, in WindowInput) (*models.InstructorAvailability, error) {
	if (in.Date == nil) == (in.DayOfWeek == nil) {
		return nil, apperr.New(apperr.ValidationError, "set either date or day_of_week")
	}
	if in.Date != nil {
		if _, err := ParseDate(*in.Date); err != nil {
			return nil, err
		}
	}
	if in.DayOfWeek != nil && (*in.DayOfWeek < 0 || *in.DayOfWeek > 6) {
		return nil, apperr.New(apperr.ValidationError, "day_of_week must be between 0 and 6")
	}
	start, end, err := ValidateRange(in.StartTime, in.EndTime)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Location) == "" {
		return nil, apperr.New(apperr.ValidationError, "location is required")
	}

	w := models.InstructorAvailability{
		InstructorID: instructorID,
		Date:         in.Date,
		DayOfWeek:    in.DayOfWeek,
		StartTime:    start,
		EndTime:      end,
		Location:     strings.TrimSpace(in.Location),
	}
	if err := s.db.WithContext(ctx).Create(&w).Error; err != nil {
		return nil, fmt.Errorf("create availability: %w", err)
	}
	return &w, nil
}

func (s *Service) ListWindows(ctx context.Context, instructorID uuid.UUID) ([]models.InstructorAvailability, error) {
	var out []models.InstructorAvailability
	err := s.db.WithContext(ctx).
		Where("instructor_id = ?", instructorID).
		Order("date, day_of_week, start_time").
		Find(&out).Error
	return out, err
}

// DeleteWindow removes a window owned by instructorID.
func (s *Service) DeleteWindow(ctx context.Context, instructorID, windowID uuid.UUID) error {
	var w models.InstructorAvailability
	err := s.db.WithContext(ctx).First(&w, "id = ?", windowID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.New(apperr.NotFound, "availability window not found")
	}
	if err != nil {
		return fmt.Errorf("load availability: %w", err)
	}
	if w.InstructorID != instructorID {
		return apperr.New(apperr.Unauthorized, "you can only remove your own availability")
	}
	return s.db.WithContext(ctx).Delete(&w).Error
}
