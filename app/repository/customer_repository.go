package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
)

// customerRepository implements the CustomerRepository interface
type customerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository creates a new customer repository instance
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &customerRepository{db: db}
}

func (r *customerRepository) Create(ctx context.Context, customer *models.Customer) error {
	customer.Email = models.NormalizeEmail(customer.Email)
	if err := customer.Validate(); err != nil {
		return apperror.Validation(apperror.CodeValidationFailed, err.Error())
	}
	return r.db.WithContext(ctx).Create(customer).Error
}

// GetByID retrieves a customer by id
func (r *customerRepository) GetByID(ctx context.Context, id string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// GetByEmail retrieves a customer by exact email match
func (r *customerRepository) GetByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("email = ?", models.NormalizeEmail(email)).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *customerRepository) ListAfter(ctx context.Context, afterID string, limit int) ([]models.Customer, error) {
	var customers []models.Customer
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&customers).Error
	return customers, err
}

func (r *customerRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Customer{}).Count(&count).Error
	return count, err
}
