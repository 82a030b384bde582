package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/UnseenElementz/plex-crm-sub001/app/controllers"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/constants"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/env"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/gate"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/middleware"
)

type ApiRouter struct {
	deps Deps
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	d := h.deps
	prod := env.IsProduction()

	// Gate bypass paths stay reachable under load; login has its own limiter.
	unlimited := gate.NewPrefixSet(bypassPaths()...)
	apiLimiter := h.limiter(env.GetEnvInt("API_RATE_LIMIT", 120), time.Minute, func(c *fiber.Ctx) bool {
		return unlimited.Match(c.Path())
	})
	api := app.Group(constants.APIPrefix, apiLimiter)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	diagnostics := controllers.NewDiagnosticsController(d.PingDatabase, d.PingCache, d.Settings.Source)
	app.Get(constants.DiagnosticsRoute+"/health", diagnostics.Health)

	webhooks := controllers.NewWebhookController(
		d.Reconciler,
		env.GetEnv("WEBHOOK_SECRET", ""),
		env.GetEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		d.Metrics.WebhookEvent,
	)
	app.Post(constants.PayPalWebhookRoute, webhooks.HandleCapture)

	auth := controllers.NewAuthController(d.Repos.AdminUser, d.Sessions)
	authGroup := app.Group(constants.AdminAuthRoute)
	authGroup.Post("/login", h.limiter(env.GetEnvInt("LOGIN_RATE_LIMIT", 10), time.Minute, nil), auth.Login)
	authGroup.Post("/logout", auth.Logout)
	authGroup.Get("/session", auth.Session)

	requireAdmin := middleware.RequireAdminAPI(prod)

	settingsCtrl := controllers.NewSettingsController(d.Settings, prod)
	settingsGroup := app.Group(constants.AdminSettingsRoute, requireAdmin)
	settingsGroup.Get("/", settingsCtrl.Get)
	settingsGroup.Put("/", settingsCtrl.Put)
	settingsGroup.Post("/blocked-ips", settingsCtrl.AddBlockedIP)
	settingsGroup.Delete("/blocked-ips/:ip", settingsCtrl.RemoveBlockedIP)
	settingsGroup.Delete("/ip-logs", settingsCtrl.ClearIPLogs)

	customers := controllers.NewCustomerController(d.Repos.Customer, d.Repos.Payment)
	customerGroup := app.Group(constants.AdminCustomersRoute, requireAdmin)
	customerGroup.Get("/:id", customers.Get)
	customerGroup.Get("/:id/payments", customers.Payments)

	reminders := controllers.NewReminderController(
		d.Reminders,
		env.GetEnvDuration("REMINDER_RUN_TIMEOUT", 10*time.Minute),
		d.Metrics.ReminderRun,
	)
	app.Post(constants.CronRemindersRoute, middleware.RequireCronSecret(env.GetEnv("CRON_SECRET", ""), !prod), reminders.Trigger)
}

func NewApiRouter(deps Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

// limiter keys on the same client address the gate checks.
func (h ApiRouter) limiter(max int, window time.Duration, skip func(*fiber.Ctx) bool) fiber.Handler {
	return limiter.New(limiter.Config{
		Next:         skip,
		Max:          max,
		Expiration:   window,
		KeyGenerator: gate.ClientIP,
		Storage:      h.deps.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "rate_limited",
				"message": "too many requests",
			})
		},
	})
}
