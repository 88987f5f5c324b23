package services

import (
	"context"
	"fmt"

	"github.com/anjiri1684/studio_booking/apperr"
	"github.com/anjiri1684/studio_booking/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileService struct {
	db *gorm.DB
}

func NewProfileService(db *gorm.DB) *ProfileService {
	return &ProfileService{db: db}
}

type StudioInput struct {
	Name            string          `json:"name" validate:"required,max=255"`
	Location        string          `json:"location" validate:"required,max=255"`
	HourlyRate      decimal.Decimal `json:"hourly_rate"`
	EquipmentPrices models.RateCard `json:"equipment_prices" validate:"dive"`
}

type InstructorInput struct {
	Headline *string         `json:"headline" validate:"omitempty,max=255"`
	BaseRate decimal.Decimal `json:"base_rate"`
	Rates    models.RateCard `json:"rates" validate:"dive"`
}

func (s *ProfileService) CreateStudio(ctx context.Context, actor Actor, in StudioInput) (*models.StudioProfile, error) {
	if actor.Role != models.RoleStudio {
		return nil, apperr.New(apperr.Unauthorized, "only studio accounts can create studios")
	}
	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if err := rates(in.HourlyRate, in.EquipmentPrices); err != nil {
		return nil, err
	}
	studio := models.StudioProfile{
		OwnerID:         actor.ID,
		Name:            in.Name,
		Location:        in.Location,
		HourlyRate:      in.HourlyRate,
		EquipmentPrices: datatypes.NewJSONType(in.EquipmentPrices),
	}
	if err := s.db.WithContext(ctx).Create(&studio).Error; err != nil {
		return nil, fmt.Errorf("create studio: %w", err)
	}
	return &studio, nil
}

func (s *ProfileService) ListStudios(ctx context.Context) ([]models.StudioProfile, error) {
	var out []models.StudioProfile
	err := s.db.WithContext(ctx).Order("name").Find(&out).Error
	return out, err
}

// SaveInstructorProfile creates or replaces the caller's rate card. Fee
// overrides are left untouched; only admins set them.
func (s *ProfileService) SaveInstructorProfile(ctx context.Context, actor Actor, in InstructorInput) (*models.InstructorProfile, error) {
	if actor.Role != models.RoleInstructor {
		return nil, apperr.New(apperr.Unauthorized, "only instructors have instructor profiles")
	}
	if err := validate.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if err := rates(in.BaseRate, in.Rates); err != nil {
		return nil, err
	}
	p := models.InstructorProfile{
		UserID:   actor.ID,
		Headline: in.Headline,
		BaseRate: in.BaseRate,
		Rates:    datatypes.NewJSONType(in.Rates),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"headline", "base_rate", "rates", "updated_at"}),
	}).Create(&p).Error
	if err != nil {
		return nil, fmt.Errorf("save instructor profile: %w", err)
	}
	return &p, nil
}

// SetFeeOverride records a founding-partner service fee for a studio or an
// instructor. A nil percent removes the override.
func (s *ProfileService) SetFeeOverride(ctx context.Context, actor Actor, role models.Role, id uuid.UUID, percent *decimal.Decimal) error {
	if !actor.IsAdmin() {
		return apperr.New(apperr.Unauthorized, "only admins set fee overrides")
	}
	value := decimal.NullDecimal{}
	if percent != nil {
		if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(100)) {
			return apperr.New(apperr.ValidationError, "fee percent must be between 0 and 100")
		}
		value = decimal.NewNullDecimal(*percent)
	}

	var res *gorm.DB
	switch role {
	case models.RoleStudio:
		res = s.db.WithContext(ctx).Model(&models.StudioProfile{}).Where("id = ?", id).Update("custom_fee_percent", value)
	case models.RoleInstructor:
		res = s.db.WithContext(ctx).Model(&models.InstructorProfile{}).Where("user_id = ?", id).Update("custom_fee_percent", value)
	default:
		return apperr.New(apperr.ValidationError, "fee overrides apply to studios and instructors")
	}
	if res.Error != nil {
		return fmt.Errorf("set fee override: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.New(apperr.NotFound, "profile not found")
	}
	return nil
}

func rates(base decimal.Decimal, card models.RateCard) error {
	if base.IsNegative() {
		return apperr.New(apperr.ValidationError, "rates cannot be negative")
	}
	for _, r := range card {
		if r.Equipment == "" || r.Rate.IsNegative() {
			return apperr.New(apperr.ValidationError, "every rate needs equipment and a non-negative amount")
		}
	}
	return nil
}
