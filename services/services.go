// Package services drives bookings through their lifecycle and runs the
// studio-side operations around them.
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/anjiri1684/studio_booking/apperr"
	config "github.com/anjiri1684/studio_booking/configs"
	"github.com/anjiri1684/studio_booking/matcher"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var (
	validate = validator.New()
	tracer   = otel.Tracer("github.com/anjiri1684/studio_booking/services")
)

// Actor is the authenticated caller.
type Actor struct {
	ID   uuid.UUID
	Role models.Role
}

func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.CodeOf(err)))
	}
	span.End()
}

func invalid(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		f := verrs[0]
		return apperr.Wrap(apperr.ValidationError,
			fmt.Sprintf("field %s failed on %s", f.Field(), f.Tag()), err)
	}
	return apperr.Wrap(apperr.ValidationError, "invalid input", err)
}

// notFound maps a missing row to NotFound and wraps anything else.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.Newf(apperr.NotFound, "%s not found", what)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// sessionTimes turns a slot date and clock range into UTC instants, reading
// the clocks in the marketplace time zone.
func sessionTimes(policy config.Policy, date, start, end string) (time.Time, time.Time, error) {
	if _, err := matcher.ParseDate(date); err != nil {
		return time.Time{}, time.Time{}, err
	}
	start, end, err := matcher.ValidateRange(start, end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	loc := policy.Location()
	layout := matcher.DateLayout + " " + matcher.ClockLayout
	startsAt, err := time.ParseInLocation(layout, date+" "+start, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Wrap(apperr.ValidationError, "invalid start", err)
	}
	endsAt, err := time.ParseInLocation(layout, date+" "+end, loc)
	if err != nil {
		return time.Time{}, time.Time{}, apperr.Wrap(apperr.ValidationError, "invalid end", err)
	}
	return startsAt.UTC(), endsAt.UTC(), nil
}
