package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/session"
)

// AdminAccounts is the part of the admin user repository used for sign in.
type AdminAccounts interface {
	Create(ctx context.Context, admin *models.AdminUser) error
	GetByEmail(ctx context.Context, email string) (*models.AdminUser, error)
	Count(ctx context.Context) (int64, error)
	TouchLogin(ctx context.Context, id uint, at time.Time) error
}

// AuthController handles admin sign in and sign out
type AuthController struct {
	admins   AdminAccounts
	sessions *session.Manager
}

func NewAuthController(admins AdminAccounts, sessions *session.Manager) *AuthController {
	return &AuthController{admins: admins, sessions: sessions}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

var errBadCredentials = apperror.Unauthorized("invalid email or password")

// Login handles POST /api/admin/auth/login
func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return apperror.Respond(c, err)
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	admin, err := ac.admins.GetByEmail(c.UserContext(), email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Auth] failed login for unknown admin %s from %s", email, c.IP())
			return apperror.Respond(c, errBadCredentials)
		}
		return apperror.Respond(c, apperror.FromStore(err, apperror.CodeNotFound, "admin"))
	}
	if !admin.CheckPassword(req.Password) {
		log.Warnf("[Auth] failed login for %s from %s", email, c.IP())
		return apperror.Respond(c, errBadCredentials)
	}

	if err := ac.sessions.Issue(c, admin.ID, admin.Email); err != nil {
		log.Errorf("[Auth] issuing session for %s: %v", email, err)
		return apperror.Respond(c, err)
	}
	if err := ac.admins.TouchLogin(c.UserContext(), admin.ID, time.Now()); err != nil {
		log.Warnf("[Auth] recording login time for %s: %v", email, err)
	}
	log.Infof("[Auth] admin %s signed in from %s", email, c.IP())
	return c.JSON(fiber.Map{"id": admin.ID, "email": admin.Email, "name": admin.Name})
}

// Logout handles POST /api/admin/auth/logout
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	ac.sessions.Clear(c)
	return c.JSON(fiber.Map{"ok": true})
}

// Session handles GET /api/admin/auth/session
func (ac *AuthController) Session(c *fiber.Ctx) error {
	claims, ok := ac.sessions.FromRequest(c)
	if !ok {
		return apperror.Respond(c, apperror.Unauthorized("not signed in"))
	}
	return c.JSON(fiber.Map{
		"id":         claims.AdminID(),
		"email":      claims.Email,
		"expires_at": claims.ExpiresAt.Time.UTC().Format(time.RFC3339),
	})
}

// BootstrapAdmin creates the first administrator when none exists. It is a
// no-op when email or password is empty or an admin is already present.
func BootstrapAdmin(ctx context.Context, admins AdminAccounts, email, password string) (bool, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return false, nil
	}
	n, err := admins.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count admins: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	admin, err := models.NewAdminUser("Administrator", email, password)
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	if err := admins.Create(ctx, admin); err != nil {
		return false, fmt.Errorf("create bootstrap admin: %w", err)
	}
	log.Infof("[Auth] bootstrap admin %s created", admin.Email)
	return true, nil
}
