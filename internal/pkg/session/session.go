package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/env"
)

// CookieName is the signed admin session cookie.
const CookieName = "plexcrm_admin"

const issuer = "plexcrm"

var ErrNoSession = errors.New("no admin session")

// Claims identify the signed in administrator.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// AdminID returns the numeric admin id carried in the subject claim.
func (c *Claims) AdminID() uint {
	id, _ := strconv.ParseUint(c.Subject, 10, 64)
	return uint(id)
}

// Manager issues and verifies admin session cookies.
type Manager struct {
	secret []byte
	ttl    time.Duration
	secure bool
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration, secure bool) *Manager {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Manager{secret: []byte(secret), ttl: ttl, secure: secure, now: time.Now}
}

// NewManagerFromEnv reads SESSION_SECRET and SESSION_TTL. Cookies are marked
// secure in production.
func NewManagerFromEnv() *Manager {
	secret := env.GetEnv("SESSION_SECRET", "")
	if secret == "" {
		if env.IsProduction() {
			panic("SESSION_SECRET must be set in production")
		}
		secret = "dev-session-secret"
	}
	return NewManager(secret, env.GetEnvDuration("SESSION_TTL", 12*time.Hour), env.IsProduction())
}

// Sign returns a signed token for the admin.
func (m *Manager) Sign(adminID uint, email string) (string, time.Time, error) {
	now := m.now()
	expires := now.Add(m.ttl)
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(adminID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return token, expires, nil
}

// Issue signs a session for the admin and sets the cookie.
func (m *Manager) Issue(c *fiber.Ctx, adminID uint, email string) error {
	token, expires, err := m.Sign(adminID, email)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}

// Verify parses and validates a session token.
func (m *Manager) Verify(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrNoSession
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, err
	}
	if claims.AdminID() == 0 {
		return nil, ErrNoSession
	}
	return claims, nil
}

// FromRequest returns the claims of a valid session cookie.
func (m *Manager) FromRequest(c *fiber.Ctx) (*Claims, bool) {
	claims, err := m.Verify(c.Cookies(CookieName))
	if err != nil {
		return nil, false
	}
	return claims, true
}

// Clear expires the session cookie.
func (m *Manager) Clear(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   m.secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}
