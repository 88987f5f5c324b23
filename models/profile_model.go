package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EquipmentRate is one hourly price entry of a rate card.
type EquipmentRate struct {
	Equipment string          `json:"equipment"`
	Rate      decimal.Decimal `json:"rate"`
}

type RateCard []EquipmentRate

// Lookup matches equipment names case-insensitively.
func (rc RateCard) Lookup(equipment string) (decimal.Decimal, bool) {
	name := strings.TrimSpace(equipment)
	for _, r := range rc {
		if strings.EqualFold(strings.TrimSpace(r.Equipment), name) {
			return r.Rate, true
		}
	}
	return decimal.Zero, false
}

type InstructorProfile struct {
	UserID   uuid.UUID                    `gorm:"type:uuid;primary_key" json:"user_id"`
	Headline *string                      `gorm:"size:255" json:"headline"`
	BaseRate decimal.Decimal              `gorm:"type:numeric(12,2);not null" json:"base_rate"`
	Rates    datatypes.JSONType[RateCard] `json:"rates"`

	// CustomFeePercent is set for founding partners.
	CustomFeePercent decimal.NullDecimal `gorm:"type:numeric(5,2)" json:"custom_fee_percent"`

	User      User      `gorm:"foreignkey:UserID" json:"user"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

type StudioProfile struct {
	ID               uuid.UUID                    `gorm:"type:uuid;primary_key" json:"id"`
	OwnerID          uuid.UUID                    `gorm:"type:uuid;not null;index" json:"owner_id"`
	Name             string                       `gorm:"size:255;not null" json:"name"`
	Location         string                       `gorm:"size:255;not null" json:"location"`
	HourlyRate       decimal.Decimal              `gorm:"type:numeric(12,2);not null" json:"hourly_rate"`
	EquipmentPrices  datatypes.JSONType[RateCard] `json:"equipment_prices"`
	CustomFeePercent decimal.NullDecimal          `gorm:"type:numeric(5,2)" json:"custom_fee_percent"`

	Owner     User      `gorm:"foreignkey:OwnerID" json:"-"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

func (s *StudioProfile) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}
