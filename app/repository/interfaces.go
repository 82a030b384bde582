package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/billing"
)

// CustomerRepository defines the interface for customer reads
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	GetByID(ctx context.Context, id string) (*models.Customer, error)
	GetByEmail(ctx context.Context, email string) (*models.Customer, error)
	// ListAfter pages through customers ordered by id.
	ListAfter(ctx context.Context, afterID string, limit int) ([]models.Customer, error)
	Count(ctx context.Context) (int64, error)
}

// PaymentRepository is the reconciler's store plus the payment history query
type PaymentRepository interface {
	billing.Store
	ListByCustomer(ctx context.Context, customerID string, offset, limit int) ([]models.Payment, int64, error)
}

// ReminderRepository persists reminder send records
type ReminderRepository interface {
	ListCustomers(ctx context.Context, afterID string, limit int) ([]models.Customer, error)
	HasSent(ctx context.Context, customerID string, bucket int) (bool, error)
	Claim(ctx context.Context, rec *models.ReminderSendRecord) (bool, error)
	ConfirmSent(ctx context.Context, id uint, sentAt time.Time) error
	Release(ctx context.Context, id uint) error
}

// SettingRepository loads and saves the administrative settings rows
type SettingRepository interface {
	Load(ctx context.Context) (*models.AdminSettings, error)
	Save(ctx context.Context, settings *models.AdminSettings) error
}

// AdminUserRepository defines the interface for administrator accounts
type AdminUserRepository interface {
	Create(ctx context.Context, admin *models.AdminUser) error
	GetByID(ctx context.Context, id uint) (*models.AdminUser, error)
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	Count(ctx context.Context) (int64, error)
	TouchLogin(ctx context.Context, id uint, at time.Time) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	Customer  CustomerRepository
	Payment   PaymentRepository
	Reminder  ReminderRepository
	Setting   SettingRepository
	AdminUser AdminUserRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	customers := NewCustomerRepository(db)
	return &Repositories{
		Customer:  customers,
		Payment:   NewPaymentRepository(db),
		Reminder:  NewReminderRepository(db, customers),
		Setting:   NewSettingRepository(db),
		AdminUser: NewAdminUserRepository(db),
	}
}
