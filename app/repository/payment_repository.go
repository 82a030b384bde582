package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/billing"
)

// paymentRepository implements the PaymentRepository interface
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) FindCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func (r *paymentRepository) PaymentExists(ctx context.Context, captureID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Payment{}).Where("capture_id = ?", captureID).Count(&count).Error
	return count > 0, err
}

// RecordPayment inserts the payment guarded by the unique capture id and, only
// when the row was inserted, advances the locked customer in the same
// transaction.
func (r *paymentRepository) RecordPayment(ctx context.Context, customerID string, payment *models.Payment, advance billing.AdvanceFunc) (billing.RecordResult, error) {
	var res billing.RecordResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		insert := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "capture_id"}},
			DoNothing: true,
		}).Create(payment)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			return nil
		}

		var customer models.Customer
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", customerID).
			First(&customer).Error; err != nil {
			return err
		}

		next := advance(customer.NextDueDate, customer.Plan)
		if err := tx.Model(&models.Customer{}).Where("id = ?", customerID).Updates(map[string]interface{}{
			"next_due_date": next,
			"status":        models.CustomerStatusActive,
		}).Error; err != nil {
			return err
		}

		res = billing.RecordResult{Created: true, NextDueDate: next}
		return nil
	})
	if err != nil {
		return billing.RecordResult{}, err
	}
	return res, nil
}

// ListByCustomer returns a page of the customer's payments, newest first, and
// the total count.
func (r *paymentRepository) ListByCustomer(ctx context.Context, customerID string, offset, limit int) ([]models.Payment, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&models.Payment{}).Where("customer_id = ?", customerID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var payments []models.Payment
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&payments).Error
	return payments, total, err
}
