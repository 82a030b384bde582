package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
)

// settingRepository implements the SettingRepository interface
type settingRepository struct {
	db *gorm.DB
}

// NewSettingRepository creates a new setting repository instance
func NewSettingRepository(db *gorm.DB) SettingRepository {
	return &settingRepository{db: db}
}

// Load reads all setting rows and applies them over the defaults
func (r *settingRepository) Load(ctx context.Context) (*models.AdminSettings, error) {
	var rows []models.Setting
	if err := r.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}
	return models.AdminSettingsFromRows(rows)
}

// Save upserts every settings row in one transaction
func (r *settingRepository) Save(ctx context.Context, settings *models.AdminSettings) error {
	rows, err := settings.ToRows()
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "setting_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "type", "updated_at"}),
		}).Create(&rows).Error
	})
}
