package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Slot is a studio inventory record. A bucket pools units for an hour; an
// extracted slot holds exactly the units of one booking.
type Slot struct {
	ID        uuid.UUID                     `gorm:"type:uuid;primary_key" json:"id"`
	StudioID  uuid.UUID                     `gorm:"type:uuid;not null;index" json:"studio_id"`
	Date      string                        `gorm:"size:10;not null;index" json:"date"`
	StartTime string                        `gorm:"size:5;not null" json:"start_time"`
	EndTime   string                        `gorm:"size:5;not null" json:"end_time"`
	Equipment datatypes.JSONType[Inventory] `json:"equipment"`
	Quantity  int                           `gorm:"not null" json:"quantity"`

	IsAvailable  bool       `gorm:"index" json:"is_available"`
	SourceSlotID *uuid.UUID `gorm:"type:uuid" json:"source_slot_id,omitempty"`
	Version      int        `gorm:"not null" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}

func (s Slot) Inventory() Inventory {
	return s.Equipment.Data()
}
