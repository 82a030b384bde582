package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// CronSecretHeader carries the shared secret of the reminder trigger.
const CronSecretHeader = "X-Cron-Secret"

// RequireCronSecret authenticates scheduler calls carrying the shared secret
// in X-Cron-Secret or as a bearer token. With an empty secret every call is
// rejected unless allowUnset is true.
func RequireCronSecret(secret string, allowUnset bool) fiber.Handler {
	if secret == "" && allowUnset {
		log.Warn("[Cron] CRON_SECRET not set, trigger endpoint is unauthenticated")
	}
	return func(c *fiber.Ctx) error {
		if secret == "" {
			if allowUnset {
				return c.Next()
			}
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Cron secret not configured"})
		}
		provided := extractCronSecret(c)
		if provided == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing cron secret"})
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			log.Warnf("[Cron] rejected trigger from %s: secret mismatch", c.IP())
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid cron secret"})
		}
		return c.Next()
	}
}

func extractCronSecret(c *fiber.Ctx) string {
	secret := strings.TrimSpace(c.Get(CronSecretHeader))
	if secret != "" {
		return secret
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
