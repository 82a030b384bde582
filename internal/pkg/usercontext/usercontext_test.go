package usercontext

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminContextDefaultsToAnonymous(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		assert.False(t, IsAuthenticated(c))
		assert.Zero(t, GetAdminID(c))
		assert.Empty(t, GetEmail(c))
		return c.SendStatus(fiber.StatusNoContent)
	})
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}

func TestAdminContextRoundTrip(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		Set(c, AdminContext{AdminID: 7, Email: "ops@example.com", Authenticated: true})
		return c.Next()
	})
	app.Get("/", func(c *fiber.Ctx) error {
		assert.True(t, IsAuthenticated(c))
		assert.Equal(t, uint(7), GetAdminID(c))
		assert.Equal(t, "ops@example.com", GetEmail(c))
		return c.SendStatus(fiber.StatusNoContent)
	})
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
