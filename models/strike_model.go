package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StudioStrike records one late cancellation initiated by a studio.
type StudioStrike struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	StudioID  uuid.UUID `gorm:"type:uuid;not null;index" json:"studio_id"`
	BookingID uuid.UUID `gorm:"type:uuid;not null" json:"booking_id"`
	StruckAt  time.Time `gorm:"not null;index" json:"struck_at"`
}

func (s *StudioStrike) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}
