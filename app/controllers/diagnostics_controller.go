package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// DiagnosticsController reports dependency reachability
type DiagnosticsController struct {
	database       PingFunc
	cache          PingFunc
	settingsSource func() string
	timeout        time.Duration
}

func NewDiagnosticsController(database, cache PingFunc, settingsSource func() string) *DiagnosticsController {
	return &DiagnosticsController{
		database:       database,
		cache:          cache,
		settingsSource: settingsSource,
		timeout:        time.Second,
	}
}

// Health handles GET /api/diagnostics/health. Redis is optional, so only an
// unreachable database turns the response into a 503.
func (dc *DiagnosticsController) Health(c *fiber.Ctx) error {
	dbStatus := dc.check(c.UserContext(), dc.database)
	cacheStatus := dc.check(c.UserContext(), dc.cache)

	status := "ok"
	code := fiber.StatusOK
	switch {
	case dbStatus != "ok":
		status = "unavailable"
		code = fiber.StatusServiceUnavailable
	case cacheStatus != "ok":
		status = "degraded"
	}

	source := ""
	if dc.settingsSource != nil {
		source = dc.settingsSource()
	}
	return c.Status(code).JSON(fiber.Map{
		"status":          status,
		"database":        dbStatus,
		"cache":           cacheStatus,
		"settings_source": source,
		"time":            time.Now().UTC().Format(time.RFC3339),
	})
}

func (dc *DiagnosticsController) check(parent context.Context, ping PingFunc) string {
	if ping == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(parent, dc.timeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}
