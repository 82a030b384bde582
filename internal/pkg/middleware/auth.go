package middleware

import (
	"github.com/gofiber/fiber/v2"

	icuser "github.com/UnseenElementz/plex-crm-sub001/internal/pkg/usercontext"
)

// RequireAdminAPI ensures a signed-in admin for API routes and returns JSON
// 401 instead of a redirect. When required is false the check is skipped,
// which is how non-production environments run.
func RequireAdminAPI(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !required || icuser.IsAuthenticated(c) {
			return c.Next()
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   "unauthorized",
			"message": "login required",
		})
	}
}
