package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// AdminUser may sign in to the administrative surface.
type AdminUser struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Email       string     `gorm:"type:varchar(200);not null;uniqueIndex" json:"email" validate:"required,email,max=200"`
	Name        string     `gorm:"type:varchar(150)" json:"name" validate:"max=150"`
	Password    string     `gorm:"type:text;not null" json:"-" validate:"required"`
	LastLoginAt *time.Time `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func NewAdminUser(name, email, password string) (*AdminUser, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	a := &AdminUser{
		Name:     strings.TrimSpace(name),
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Password: pw,
	}
	if err := validator.New().Struct(a); err != nil {
		return nil, err
	}
	return a, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

func (a *AdminUser) CheckPassword(password string) bool {
	return CheckPasswordHash(password, a.Password)
}
