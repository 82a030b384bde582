package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
)

// reminderRepository implements the ReminderRepository interface
type reminderRepository struct {
	db        *gorm.DB
	customers CustomerRepository
}

// NewReminderRepository creates a new reminder repository instance
func NewReminderRepository(db *gorm.DB, customers CustomerRepository) ReminderRepository {
	return &reminderRepository{db: db, customers: customers}
}

func (r *reminderRepository) ListCustomers(ctx context.Context, afterID string, limit int) ([]models.Customer, error) {
	return r.customers.ListAfter(ctx, afterID, limit)
}

func (r *reminderRepository) HasSent(ctx context.Context, customerID string, bucket int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ReminderSendRecord{}).
		Where("customer_id = ? AND bucket = ?", customerID, bucket).
		Count(&count).Error
	return count > 0, err
}

// Claim inserts the record unless (customer_id, bucket) already exists.
func (r *reminderRepository) Claim(ctx context.Context, rec *models.ReminderSendRecord) (bool, error) {
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "customer_id"}, {Name: "bucket"}},
		DoNothing: true,
	}).Create(rec)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *reminderRepository) ConfirmSent(ctx context.Context, id uint, sentAt time.Time) error {
	return r.db.WithContext(ctx).Model(&models.ReminderSendRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":  models.ReminderStatusSent,
			"sent_at": sentAt.UTC(),
		}).Error
}

// Release removes a claim whose send failed. Confirmed records are kept.
func (r *reminderRepository) Release(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND status = ?", id, models.ReminderStatusClaimed).
		Delete(&models.ReminderSendRecord{}).Error
}
