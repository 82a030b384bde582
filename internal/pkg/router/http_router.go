package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/env"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/gate"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/middleware"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/usercontext"
)

type HttpRouter struct {
	deps Deps
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Resolve the admin session once; the gate and the admin API read it.
	app.Use(middleware.AdminContextMiddleware(h.deps.Sessions))

	app.Use(gate.New(gate.Config{
		Bypass:         bypassPaths(),
		RequireSession: env.IsProduction(),
		HasSession:     usercontext.IsAuthenticated,
		Settings:       h.deps.Settings,
		OnAccess:       h.recordAccess,
		OnDecision:     h.deps.Metrics.GateDecision,
	}))

	h.registerMonitoringRoutes(app)
}

func NewHttpRouter(deps Deps) *HttpRouter {
	return &HttpRouter{deps: deps}
}

func (h HttpRouter) recordAccess(a gate.Access) {
	if h.deps.Access == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := h.deps.Access.Record(ctx, a.IP, a.Path, a.UserAgent, a.At); err != nil {
		log.Debugf("[Gate] recording access for %s: %v", a.IP, err)
	}
}

// registerMonitoringRoutes mounts /metrics and /monitor behind basic auth.
// Both stay unmounted without METRICS_PASSWORD.
func (h HttpRouter) registerMonitoringRoutes(app *fiber.App) {
	password := env.GetEnv("METRICS_PASSWORD", "")
	if password == "" {
		log.Warn("[Router] METRICS_PASSWORD not set, /metrics and /monitor are disabled")
		return
	}
	auth := basicauth.New(basicauth.Config{
		Users: map[string]string{
			env.GetEnv("METRICS_USER", "admin"): password,
		},
	})
	app.Get("/metrics", auth, h.deps.Metrics.Handler())
	app.Get("/monitor", auth, monitor.New(monitor.Config{Title: "Plex CRM Monitor"}))
}
