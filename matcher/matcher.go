// Package matcher decides whether an instructor can take a session at a given
// time and place.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

type Policy struct {
	// AllowWhenNoWindows treats an instructor without a single availability
	// window as having no restrictions.
	AllowWhenNoWindows bool
}

type Request struct {
	InstructorID uuid.UUID
	Date         string
	StartTime    string
	EndTime      string
	Location     string
}

type Service struct {
	db     *gorm.DB
	policy Policy
}

func NewService(db *gorm.DB, policy Policy) *Service {
	return &Service{db: db, policy: policy}
}

// Check fails with InstructorUnavailable when no window covers the request and
// with LocationMismatch when covering windows exist but none is at the place.
func (s *Service) Check(ctx context.Context, req Request) error {
	day, err := ParseDate(req.Date)
	if err != nil {
		return err
	}
	if req.StartTime, req.EndTime, err = ValidateRange(req.StartTime, req.EndTime); err != nil {
		return err
	}

	var configured int64
	err = s.db.WithContext(ctx).Model(&models.InstructorAvailability{}).
		Where("instructor_id = ?", req.InstructorID).
		Count(&configured).Error
	if err != nil {
		return fmt.Errorf("count availability: %w", err)
	}
	if configured == 0 && s.policy.AllowWhenNoWindows {
		return nil
	}

	var specific, weekly []models.InstructorAvailability
	err = s.db.WithContext(ctx).
		Where("instructor_id = ? AND date = ?", req.InstructorID, req.Date).
		Find(&specific).Error
	if err != nil {
		return fmt.Errorf("load dated availability: %w", err)
	}
	err = s.db.WithContext(ctx).
		Where("instructor_id = ? AND date IS NULL AND day_of_week = ?", req.InstructorID, int(day.Weekday())).
		Find(&weekly).Error
	if err != nil {
		return fmt.Errorf("load weekly availability: %w", err)
	}

	covering := make([]models.InstructorAvailability, 0, len(specific)+len(weekly))
	for _, w := range append(specific, weekly...) {
		if w.StartTime <= req.StartTime && w.EndTime >= req.EndTime {
			covering = append(covering, w)
		}
	}
	if len(covering) == 0 {
		return apperr.New(apperr.InstructorUnavailable, "instructor is not available at this time")
	}
	if strings.TrimSpace(req.Location) == "" {
		return nil
	}
	for _, w := range covering {
		if LocationMatches(w.Location, req.Location) {
			return nil
		}
	}
	return apperr.New(apperr.LocationMismatch, "instructor is not available at this location")
}

// EnsureNoConflict fails with SlotConflict when the instructor already holds
// an active booking starting at the same date and time.
func (s *Service) EnsureNoConflict(ctx context.Context, instructorID uuid.UUID, date, start string) error {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("instructor_id = ? AND date = ? AND start_time = ?", instructorID, date, start).
		Where("status NOT IN ?", models.InactiveStatuses).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("check booking conflict: %w", err)
	}
	if n > 0 {
		return apperr.New(apperr.SlotConflict, "instructor already has a booking at this time")
	}
	return nil
}

// LocationMatches compares case-insensitively and accepts containment either
// way, so "BGC" matches "BGC - High Street".
func LocationMatches(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return t, apperr.Newf(apperr.ValidationError, "invalid date %q, expected YYYY-MM-DD", date)
	}
	return t, nil
}

// ValidateRange checks start is before end and returns both clocks as
// zero-padded HH:MM. Clocks are stored and compared as strings, so only the
// returned form may be persisted.
func ValidateRange(start, end string) (string, string, error) {
	s, err := time.Parse(ClockLayout, strings.TrimSpace(start))
	if err != nil {
		return "", "", apperr.Newf(apperr.ValidationError, "invalid start time %q, expected HH:MM", start)
	}
	e, err := time.Parse(ClockLayout, strings.TrimSpace(end))
	if err != nil {
		return "", "", apperr.Newf(apperr.ValidationError, "invalid end time %q, expected HH:MM", end)
	}
	if !s.Before(e) {
		return "", "", apperr.New(apperr.ValidationError, "start time must be before end time")
	}
	return s.Format(ClockLayout), e.Format(ClockLayout), nil
}
