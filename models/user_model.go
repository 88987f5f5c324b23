package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleInstructor Role = "instructor"
	RoleStudio     Role = "studio"
	RoleAdmin      Role = "admin"
)

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key" json:"id"`
	FullName string    `gorm:"size:255;not null" json:"full_name"`
	Email    string    `gorm:"size:255;not null;unique" json:"email"`
	Role     Role      `gorm:"size:20;not null;default:'customer'" json:"role"`

	IsActive         bool       `json:"is_active"`
	IsSuspended      bool       `json:"is_suspended"`
	SuspendedAt      *time.Time `json:"suspended_at,omitempty"`
	SuspensionReason *string    `gorm:"type:text" json:"suspension_reason,omitempty"`
	ReinstatedAt     *time.Time `json:"reinstated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	assignID(&u.ID)
	return nil
}

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
