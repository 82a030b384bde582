package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusPending   = "pending"
)

const PaymentProviderPayPal = "paypal"

// Payment is an append-only ledger entry. CaptureID is unique so a replayed
// provider capture can never be recorded twice.
type Payment struct {
	ID         string          `gorm:"type:char(36);primaryKey" json:"id"`
	CustomerID string          `gorm:"type:char(36);not null;index:idx_payments_customer_created,priority:1" json:"customer_id"`
	CaptureID  string          `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_capture_id" json:"capture_id"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency   string          `gorm:"type:char(3);not null" json:"currency"`
	Provider   string          `gorm:"type:varchar(20);not null" json:"provider"`
	Status     string          `gorm:"type:varchar(20);not null;default:'completed'" json:"status"`
	CreatedAt  time.Time       `gorm:"autoCreateTime;index:idx_payments_customer_created,priority:2" json:"created_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	return nil
}

// BeforeUpdate rejects any modification of an existing ledger row.
func (p *Payment) BeforeUpdate(tx *gorm.DB) error {
	return ErrPaymentImmutable
}
