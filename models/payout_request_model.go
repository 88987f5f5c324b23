package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "pending"
	PayoutPaid     PayoutStatus = "paid"
	PayoutRejected PayoutStatus = "rejected"
)

type PayoutRequest struct {
	ID             uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	PayeeID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"payee_id"`
	PayeeRole      Role            `gorm:"size:20;not null" json:"payee_role"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Method         string          `gorm:"size:50;not null" json:"method"`
	AccountDetails string          `gorm:"type:text;not null" json:"account_details"`
	Status         PayoutStatus    `gorm:"size:20;not null;default:'pending'" json:"status"`
	AdminNotes     *string         `gorm:"type:text" json:"admin_notes,omitempty"`
	RequestedAt    time.Time       `gorm:"not null" json:"requested_at"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

func (p *PayoutRequest) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}
