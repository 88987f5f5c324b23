package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InstructorAvailability is a teaching window. Date-specific windows carry a
// Date; weekly windows leave it null and carry DayOfWeek instead.
type InstructorAvailability struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	InstructorID uuid.UUID `gorm:"type:uuid;not null;index" json:"instructor_id"`
	Date         *string   `gorm:"size:10;index" json:"date,omitempty"`
	DayOfWeek    *int      `json:"day_of_week,omitempty"`
	StartTime    string    `gorm:"size:5;not null" json:"start_time"`
	EndTime      string    `gorm:"size:5;not null" json:"end_time"`
	Location     string    `gorm:"size:255;not null" json:"location"`
	CreatedAt    time.Time `json:"created_at"`
}

func (a *InstructorAvailability) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
