package usercontext

import "github.com/gofiber/fiber/v2"

// AdminContext represents the administrator behind the current request
type AdminContext struct {
	AdminID       uint   `json:"admin_id"`
	Email         string `json:"email"`
	Authenticated bool   `json:"authenticated"`
}

// Set stores the admin context on the request
func Set(c *fiber.Ctx, ac AdminContext) {
	c.Locals(KeyAdminContext, ac)
}

// GetAdminContext retrieves the admin context from fiber context
// Returns an anonymous context if none is set
func GetAdminContext(c *fiber.Ctx) AdminContext {
	if ac, ok := c.Locals(KeyAdminContext).(AdminContext); ok {
		return ac
	}
	return AdminContext{}
}

// IsAuthenticated checks if the request carries a valid admin session
func IsAuthenticated(c *fiber.Ctx) bool {
	return GetAdminContext(c).Authenticated
}

// GetAdminID returns the current admin's ID, or 0 if anonymous
func GetAdminID(c *fiber.Ctx) uint {
	return GetAdminContext(c).AdminID
}

// GetEmail returns the current admin's email, or empty string if anonymous
func GetEmail(c *fiber.Ctx) string {
	return GetAdminContext(c).Email
}
