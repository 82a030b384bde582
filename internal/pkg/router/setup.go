package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/UnseenElementz/plex-crm-sub001/app/controllers"
	"github.com/UnseenElementz/plex-crm-sub001/app/repository"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/env"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/gate"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/metrics"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/metrics/counter"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/session"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/settings"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Deps are the services the routes are wired to.
type Deps struct {
	Repos      *repository.Repositories
	Settings   *settings.Service
	Reconciler controllers.Reconciler
	Reminders  controllers.ReminderRunner
	Sessions   *session.Manager
	Metrics    *metrics.Metrics
	// Access is nil when no Redis is configured; access logging is then off.
	Access *counter.AccessBuffer
	// LimiterStorage backs the rate limiters. Nil keeps counters in memory.
	LimiterStorage fiber.Storage
	PingDatabase   controllers.PingFunc
	PingCache      controllers.PingFunc
}

func InstallRouter(app *fiber.App, deps Deps) {
	// The HTTP router installs the admin context and the edge gate, which the
	// API routes rely on, so it must run first.
	setup(app, NewHttpRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}

// bypassPaths extends the gate's default bypass list with GATE_EXTRA_BYPASS.
func bypassPaths() []string {
	paths := append([]string{}, gate.DefaultBypass...)
	return append(paths, env.GetEnvList("GATE_EXTRA_BYPASS", nil)...)
}
