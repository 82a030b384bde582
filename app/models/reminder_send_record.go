package models

import "time"

const (
	ReminderStatusClaimed = "claimed"
	ReminderStatusSent    = "sent"
)

// ReminderSendRecord guarantees at most one reminder per customer and bucket.
// A row is claimed before the send and confirmed after it; failed sends
// release their claim.
type ReminderSendRecord struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	CustomerID string     `gorm:"type:char(36);not null;uniqueIndex:ux_reminder_customer_bucket,priority:1" json:"customer_id"`
	Bucket     int        `gorm:"not null;uniqueIndex:ux_reminder_customer_bucket,priority:2" json:"bucket"`
	DueDate    time.Time  `gorm:"type:date;not null" json:"due_date"`
	RunID      string     `gorm:"type:varchar(26);index" json:"run_id"`
	Status     string     `gorm:"type:varchar(16);not null;default:'claimed'" json:"status"`
	SentAt     *time.Time `gorm:"type:timestamp;default:null" json:"sent_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
