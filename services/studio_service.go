package services

import (
	"context"
	"fmt"
	"time"

	"github.com/anjiri1684/studio_booking/apperr"
	config "github.com/anjiri1684/studio_booking/configs"
	"github.com/anjiri1684/studio_booking/matcher"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/anjiri1684/studio_booking/notifications"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// StudioService manages studio inventory and the strike policy that can
// suspend a studio.
type StudioService struct {
	db     *gorm.DB
	log    *logrus.Logger
	policy config.Policy
	notify notifications.Dispatcher
	now    func() time.Time
}

func NewStudioService(db *gorm.DB, log *logrus.Logger, policy config.Policy, notify notifications.Dispatcher) *StudioService {
	return &StudioService{
		db:     db,
		log:    log,
		policy: policy,
		notify: notify,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *StudioService) WithClock(now func() time.Time) *StudioService {
	s.now = now
	return s
}

type SlotInput struct {
	StudioID  uuid.UUID        `json:"studio_id" validate:"required"`
	Date      string           `json:"date" validate:"required"`
	StartTime string           `json:"start_time" validate:"required"`
	EndTime   string           `json:"end_time" validate:"required"`
	Equipment models.Inventory `json:"equipment" validate:"required,min=1"`
}

type RecurringSlotsInput struct {
	StudioID  uuid.UUID        `json:"studio_id" validate:"required"`
	FromDate  string           `json:"from_date" validate:"required"`
	Weeks     int              `json:"weeks" validate:"required,min=1,max=12"`
	Weekdays  []int            `json:"weekdays" validate:"required,min=1,dive,min=0,max=6"`
	StartTime string           `json:"start_time" validate:"required"`
	EndTime   string           `json:"end_time" validate:"required"`
	Equipment models.Inventory `json:"equipment" validate:"required,min=1"`
}

// CreateSlot adds one inventory bucket for the caller's studio.
func (s *StudioService) CreateSlot(ctx context.Context, actor Actor, in SlotInput) (slot *models.Slot, err error) {
	ctx, span := tracer.Start(ctx, "studio.create_slot")
	defer func() { finish(span, err) }()

	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if err := in.Equipment.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, err.Error(), err)
	}
	if _, err := matcher.ParseDate(in.Date); err != nil {
		return nil, err
	}
	start, end, err := matcher.ValidateRange(in.StartTime, in.EndTime)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedActiveStudio(ctx, actor, in.StudioID); err != nil {
		return nil, err
	}

	row := bucket(in.StudioID, in.Date, start, end, in.Equipment)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}
	return &row, nil
}

// GenerateRecurringSlots creates hourly buckets between StartTime and EndTime
// on the chosen weekdays for the given number of weeks. Hours that already
// have a bucket are skipped.
func (s *StudioService) GenerateRecurringSlots(ctx context.Context, actor Actor, in RecurringSlotsInput) (created []models.Slot, err error) {
	ctx, span := tracer.Start(ctx, "studio.generate_slots")
	defer func() { finish(span, err) }()

	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if err := in.Equipment.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.ValidationError, err.Error(), err)
	}
	from, err := matcher.ParseDate(in.FromDate)
	if err != nil {
		return nil, err
	}
	hours, err := hourly(in.StartTime, in.EndTime)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedActiveStudio(ctx, actor, in.StudioID); err != nil {
		return nil, err
	}

	days := make(map[time.Weekday]bool, len(in.Weekdays))
	for _, d := range in.Weekdays {
		days[time.Weekday(d)] = true
	}

	var existing []models.Slot
	until := from.AddDate(0, 0, 7*in.Weeks)
	err = s.db.WithContext(ctx).
		Select("date", "start_time").
		Where("studio_id = ? AND source_slot_id IS NULL AND date >= ? AND date < ?",
			in.StudioID, in.FromDate, until.Format(matcher.DateLayout)).
		Find(&existing).Error
	if err != nil {
		return nil, fmt.Errorf("load existing slots: %w", err)
	}
	taken := make(map[string]bool, len(existing))
	for _, e := range existing {
		taken[e.Date+" "+e.StartTime] = true
	}

	for day := from; day.Before(until); day = day.AddDate(0, 0, 1) {
		if !days[day.Weekday()] {
			continue
		}
		date := day.Format(matcher.DateLayout)
		for _, h := range hours {
			if taken[date+" "+h[0]] {
				continue
			}
			created = append(created, bucket(in.StudioID, date, h[0], h[1], in.Equipment))
		}
	}
	if len(created) == 0 {
		return created, nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&created, 100).Error; err != nil {
		return nil, fmt.Errorf("create slots: %w", err)
	}
	s.log.WithFields(logrus.Fields{"studio_id": in.StudioID, "slots": len(created)}).Info("recurring slots generated")
	return created, nil
}

// AvailableSlots lists the bookable slots of a studio on a date.
func (s *StudioService) AvailableSlots(ctx context.Context, studioID uuid.UUID, date string) ([]models.Slot, error) {
	if _, err := matcher.ParseDate(date); err != nil {
		return nil, err
	}
	var out []models.Slot
	err := s.db.WithContext(ctx).
		Where("studio_id = ? AND date = ? AND is_available = ?", studioID, date, true).
		Order("start_time").
		Find(&out).Error
	return out, err
}

// RecordStrike logs a late studio cancellation and suspends the studio owner
// once the rolling count reaches the threshold. It reports whether this
// strike caused the suspension.
func (s *StudioService) RecordStrike(ctx context.Context, studioID, bookingID uuid.UUID) (suspended bool, err error) {
	ctx, span := tracer.Start(ctx, "studio.record_strike")
	defer func() { finish(span, err) }()

	studio, err := s.studio(ctx, studioID)
	if err != nil {
		return false, err
	}
	now := s.now()
	strike := models.StudioStrike{StudioID: studioID, BookingID: bookingID, StruckAt: now}
	if err := s.db.WithContext(ctx).Create(&strike).Error; err != nil {
		return false, fmt.Errorf("record strike: %w", err)
	}

	since := now.Add(-s.policy.StrikeWindow)
	if r := studio.Owner.ReinstatedAt; r != nil && r.After(since) {
		since = *r
	}
	var strikes int64
	err = s.db.WithContext(ctx).Model(&models.StudioStrike{}).
		Where("studio_id = ? AND struck_at >= ?", studioID, since).
		Count(&strikes).Error
	if err != nil {
		return false, fmt.Errorf("count strikes: %w", err)
	}
	if int(strikes) < s.policy.StrikeThreshold {
		return false, nil
	}

	reason := fmt.Sprintf("%d late cancellations within %s", strikes, s.policy.StrikeWindow)
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_suspended = ?", studio.OwnerID, false).
		Updates(map[string]any{
			"is_suspended":      true,
			"suspended_at":      now,
			"suspension_reason": reason,
		})
	if res.Error != nil {
		return false, fmt.Errorf("suspend studio: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}

	s.log.WithFields(logrus.Fields{"studio_id": studioID, "owner_id": studio.OwnerID, "strikes": strikes}).Warn("studio suspended")
	s.notify.Dispatch(notifications.Notification{
		Recipient: studio.OwnerID,
		Kind:      notifications.StudioSuspended,
		Fields:    map[string]string{"studio": studio.Name, "reason": reason},
	})
	return true, nil
}

// ReinstateStudio lifts a suspension. Strikes before the reinstatement no
// longer count towards the next one.
func (s *StudioService) ReinstateStudio(ctx context.Context, actor Actor, studioID uuid.UUID) (err error) {
	ctx, span := tracer.Start(ctx, "studio.reinstate")
	defer func() { finish(span, err) }()

	if !actor.IsAdmin() {
		return apperr.New(apperr.Unauthorized, "only admins can reinstate studios")
	}
	studio, err := s.studio(ctx, studioID)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND is_suspended = ?", studio.OwnerID, true).
		Updates(map[string]any{
			"is_suspended":      false,
			"suspension_reason": nil,
			"reinstated_at":     s.now(),
		})
	if res.Error != nil {
		return fmt.Errorf("reinstate studio: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.InvalidTransition, "studio is not suspended")
	}
	s.notify.Dispatch(notifications.Notification{
		Recipient: studio.OwnerID,
		Kind:      notifications.StudioReinstated,
		Fields:    map[string]string{"studio": studio.Name},
	})
	return nil
}

func (s *StudioService) studio(ctx context.Context, id uuid.UUID) (models.StudioProfile, error) {
	var studio models.StudioProfile
	if err := s.db.WithContext(ctx).Preload("Owner").First(&studio, "id = ?", id).Error; err != nil {
		return studio, notFound(err, "studio")
	}
	return studio, nil
}

// ownedActiveStudio loads a studio the actor may manage and refuses
// suspended studios.
func (s *StudioService) ownedActiveStudio(ctx context.Context, actor Actor, id uuid.UUID) (models.StudioProfile, error) {
	studio, err := s.studio(ctx, id)
	if err != nil {
		return studio, err
	}
	if !actor.IsAdmin() && studio.OwnerID != actor.ID {
		return studio, apperr.New(apperr.Unauthorized, "you do not manage this studio")
	}
	if studio.Owner.IsSuspended {
		return studio, apperr.New(apperr.AccountSuspended, "studio is suspended; slots cannot be created until it is reinstated")
	}
	return studio, nil
}

func bucket(studioID uuid.UUID, date, start, end string, inv models.Inventory) models.Slot {
	return models.Slot{
		StudioID:    studioID,
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		Equipment:   datatypes.NewJSONType(inv),
		Quantity:    inv.Total(),
		IsAvailable: inv.Total() > 0,
	}
}

// hourly cuts [start, end) into one-hour ranges; a shorter tail is kept.
func hourly(start, end string) ([][2]string, error) {
	start, end, err := matcher.ValidateRange(start, end)
	if err != nil {
		return nil, err
	}
	from, _ := time.Parse(matcher.ClockLayout, start)
	to, _ := time.Parse(matcher.ClockLayout, end)
	var out [][2]string
	for t := from; t.Before(to); t = t.Add(time.Hour) {
		next := t.Add(time.Hour)
		if next.After(to) {
			next = to
		}
		out = append(out, [2]string{t.Format(matcher.ClockLayout), next.Format(matcher.ClockLayout)})
	}
	return out, nil
}
