package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PlanMonthly   = "monthly"
	PlanYearly    = "yearly"
	PlanThreeYear = "three_year"
)

const CustomerStatusActive = "active"

// Customer is a subscriber on a recurring plan. NextDueDate is only moved
// forward by payment reconciliation.
type Customer struct {
	ID           string    `gorm:"type:char(36);primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(200) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin;not null;uniqueIndex" json:"email" validate:"required,email,max=200"`
	Name         string    `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	PlexUsername string    `gorm:"type:varchar(150);index" json:"plex_username" validate:"max=150"`
	Plan         string    `gorm:"type:varchar(20);not null;default:'monthly'" json:"plan" validate:"required,oneof=monthly yearly three_year"`
	Streams      int       `gorm:"not null;default:1" json:"streams" validate:"min=1,max=20"`
	StartDate    time.Time `gorm:"type:date;not null" json:"start_date"`
	NextDueDate  time.Time `gorm:"type:date;not null;index" json:"next_due_date"`
	Status       string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status" validate:"oneof=active overdue cancelled"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Email = NormalizeEmail(c.Email)
	return nil
}

func (c *Customer) Validate() error {
	return validator.New().Struct(c)
}

// NormalizeEmail trims surrounding space. Matching stays exact otherwise.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}
