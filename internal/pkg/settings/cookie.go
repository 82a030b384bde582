package settings

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
)

// CookieName carries the client side snapshot of the block list. The gate
// only reads it when no server snapshot is available.
const CookieName = "plexcrm_settings"

type cookieSnapshot struct {
	BlockedIPs []string `json:"blocked_ips"`
}

// EncodeCookie serializes the block list for the settings cookie.
func EncodeCookie(blocked []string) (string, error) {
	data, err := json.Marshal(cookieSnapshot{BlockedIPs: blocked})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeCookie parses a settings cookie value. ok is false for absent or
// malformed values.
func DecodeCookie(value string) (blocked []string, ok bool) {
	if value == "" {
		return nil, false
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, false
	}
	var snap cookieSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false
	}
	return snap.BlockedIPs, true
}

// SetCookie writes the settings cookie after a successful settings write.
func SetCookie(c *fiber.Ctx, blocked []string, secure bool) error {
	value, err := EncodeCookie(blocked)
	if err != nil {
		return err
	}
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Expires:  time.Now().Add(30 * 24 * time.Hour),
		HTTPOnly: true,
		Secure:   secure,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
	return nil
}
