package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/session"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/usercontext"
)

// AdminContextMiddleware resolves the admin session cookie once per request
// and stores the result for controllers, the gate and RequireAdminAPI.
func AdminContextMiddleware(sessions *session.Manager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := sessions.FromRequest(c)
		if !ok {
			usercontext.Set(c, usercontext.AdminContext{})
			return c.Next()
		}
		usercontext.Set(c, usercontext.AdminContext{
			AdminID:       claims.AdminID(),
			Email:         claims.Email,
			Authenticated: true,
		})
		return c.Next()
	}
}
