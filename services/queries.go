package services

import (
	"context"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/google/uuid"
)

type BookingFilter struct {
	Status models.BookingStatus `query:"status"`
	Limit  int                  `query:"limit"`
	Offset int                  `query:"offset"`
}

// GetBooking returns a booking to one of its parties or an admin.
func (s *BookingService) GetBooking(ctx context.Context, actor Actor, id uuid.UUID) (*models.Booking, error) {
	b, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ownerID, err := s.ownerOf(ctx, b.StudioID)
	if err != nil {
		return nil, err
	}
	if _, err := partyOf(actor, b, ownerID); err != nil {
		return nil, err
	}
	return b, nil
}

// ListBookingsFor lists the bookings the actor takes part in, newest session
// first. Studio owners see the bookings of every studio they own.
func (s *BookingService) ListBookingsFor(ctx context.Context, actor Actor, f BookingFilter) ([]models.Booking, error) {
	q := s.db.WithContext(ctx).Model(&models.Booking{})
	switch actor.Role {
	case models.RoleCustomer:
		q = q.Where("client_id = ?", actor.ID)
	case models.RoleInstructor:
		q = q.Where("instructor_id = ?", actor.ID)
	case models.RoleStudio:
		owned := s.db.Model(&models.StudioProfile{}).Select("id").Where("owner_id = ?", actor.ID)
		q = q.Where("studio_id IN (?)", owned)
	case models.RoleAdmin:
	default:
		return nil, apperr.New(apperr.Unauthorized, "unknown role")
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}

	var out []models.Booking
	err := q.Order("starts_at desc").Limit(f.Limit).Offset(f.Offset).Find(&out).Error
	return out, err
}
