package gate

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/constants"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/settings"
)

// Decisions reported to the observer.
const (
	DecisionBypass   = "bypass"
	DecisionAllow    = "allow"
	DecisionBlocked  = "blocked"
	DecisionRedirect = "redirect"
	DecisionFailOpen = "fail_open"
)

// DefaultBypass lists the paths that skip the IP check. They must stay
// reachable while the block list is stale or the settings store is down.
var DefaultBypass = []string{
	constants.DiagnosticsRoute,
	constants.PayPalWebhookRoute,
	constants.AdminAuthRoute,
	constants.AdminSettingsRoute,
}

// SnapshotSource supplies the current administrative settings.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*models.AdminSettings, string, error)
}

// Access describes one gated request for the access log.
type Access struct {
	IP        string
	Path      string
	UserAgent string
	At        time.Time
}

type Config struct {
	// Bypass defaults to DefaultBypass.
	Bypass []string
	// AdminPrefix guards the administrative surface. Defaults to "/admin".
	AdminPrefix string
	// LoginPath is the redirect target and is never guarded. Defaults to "/admin/login".
	LoginPath string
	// RequireSession enables the administrative session check.
	RequireSession bool
	// HasSession reports whether the request carries a valid admin session.
	HasSession func(c *fiber.Ctx) bool

	Settings        SnapshotSource
	SnapshotTimeout time.Duration

	OnAccess   func(a Access)
	OnDecision func(decision string)
}

// New returns the edge gate middleware. The bypass set is consulted first;
// every other request is checked against the block list and, under the
// admin prefix, for a session.
func New(cfg Config) fiber.Handler {
	if cfg.Bypass == nil {
		cfg.Bypass = DefaultBypass
	}
	if cfg.AdminPrefix == "" {
		cfg.AdminPrefix = constants.AdminUIPrefix
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = constants.AdminLogin
	}
	if cfg.SnapshotTimeout <= 0 {
		cfg.SnapshotTimeout = 500 * time.Millisecond
	}
	if cfg.HasSession == nil {
		cfg.HasSession = func(*fiber.Ctx) bool { return false }
	}
	if cfg.OnDecision == nil {
		cfg.OnDecision = func(string) {}
	}

	bypass := NewPrefixSet(cfg.Bypass...)
	admin := NewPrefixSet(cfg.AdminPrefix)
	login := NewPrefixSet(cfg.LoginPath)

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if bypass.Match(path) {
			cfg.OnDecision(DecisionBypass)
			return c.Next()
		}

		ip := ClientIP(c)
		if cfg.OnAccess != nil {
			cfg.OnAccess(Access{IP: ip, Path: path, UserAgent: c.Get(fiber.HeaderUserAgent), At: time.Now().UTC()})
		}

		blocked, known := cfg.blockList(c)
		if !known {
			cfg.OnDecision(DecisionFailOpen)
		} else if blocked.Contains(ip) {
			cfg.OnDecision(DecisionBlocked)
			c.Set(fiber.HeaderCacheControl, "no-store")
			c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
			return c.Status(fiber.StatusForbidden).Send(blockedPage)
		}

		if cfg.RequireSession && admin.Match(path) && !login.Match(path) && !cfg.HasSession(c) {
			cfg.OnDecision(DecisionRedirect)
			return c.Redirect(cfg.LoginPath, fiber.StatusSeeOther)
		}

		if known {
			cfg.OnDecision(DecisionAllow)
		}
		return c.Next()
	}
}

// blockList resolves the block list from the settings service, then from the
// settings cookie. known is false when neither is available and the request
// is let through.
func (cfg *Config) blockList(c *fiber.Ctx) (*BlockList, bool) {
	if cfg.Settings != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), cfg.SnapshotTimeout)
		snap, _, err := cfg.Settings.Snapshot(ctx)
		cancel()
		if err == nil {
			return NewBlockList(snap.BlockedIPs), true
		}
		log.Warnf("[Gate] settings snapshot unavailable: %v", err)
	}
	if ips, ok := settings.DecodeCookie(c.Cookies(settings.CookieName)); ok {
		return NewBlockList(ips), true
	}
	return nil, false
}
