package controllers

import (
	"context"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/settings"
)

// SettingsService reads and writes the administrative settings.
type SettingsService interface {
	Snapshot(ctx context.Context) (*models.AdminSettings, string, error)
	Update(ctx context.Context, fn func(*models.AdminSettings) error) (*models.AdminSettings, error)
}

// SettingsController manages the block list, access logs and reminder configuration
type SettingsController struct {
	settings     SettingsService
	secureCookie bool
}

func NewSettingsController(svc SettingsService, secureCookie bool) *SettingsController {
	return &SettingsController{settings: svc, secureCookie: secureCookie}
}

type updateSettingsRequest struct {
	BlockedIPs      *[]string `json:"blocked_ips"`
	ReminderDays    *[]int    `json:"reminder_days"`
	ReminderEnabled *bool     `json:"reminder_enabled"`
}

type blockIPRequest struct {
	IP string `json:"ip" validate:"required,ip|cidr"`
}

// Get handles GET /api/admin/settings
func (sc *SettingsController) Get(c *fiber.Ctx) error {
	snap, source, err := sc.settings.Snapshot(c.UserContext())
	if err != nil {
		return apperror.Respond(c, err)
	}
	return c.JSON(settingsResponse(snap, source))
}

// Put handles PUT /api/admin/settings. Omitted fields keep their stored value.
func (sc *SettingsController) Put(c *fiber.Ctx) error {
	var req updateSettingsRequest
	if err := bindJSON(c, &req); err != nil {
		return apperror.Respond(c, err)
	}
	return sc.write(c, "settings replaced", func(s *models.AdminSettings) error {
		if req.BlockedIPs != nil {
			s.BlockedIPs = append([]string{}, (*req.BlockedIPs)...)
		}
		if req.ReminderDays != nil {
			s.ReminderDays = append([]int{}, (*req.ReminderDays)...)
		}
		if req.ReminderEnabled != nil {
			s.ReminderEnabled = *req.ReminderEnabled
		}
		return nil
	})
}

// AddBlockedIP handles POST /api/admin/settings/blocked-ips
func (sc *SettingsController) AddBlockedIP(c *fiber.Ctx) error {
	var req blockIPRequest
	if err := bindJSON(c, &req); err != nil {
		return apperror.Respond(c, err)
	}
	ip := strings.TrimSpace(req.IP)
	return sc.write(c, "blocked "+ip, func(s *models.AdminSettings) error {
		s.BlockedIPs = append(s.BlockedIPs, ip)
		return nil
	})
}

// RemoveBlockedIP handles DELETE /api/admin/settings/blocked-ips/:ip. CIDR
// entries are passed path-escaped.
func (sc *SettingsController) RemoveBlockedIP(c *fiber.Ctx) error {
	ip, err := url.PathUnescape(c.Params("ip"))
	if err != nil || strings.TrimSpace(ip) == "" {
		return apperror.Respond(c, apperror.Validation(apperror.CodeValidationFailed, "ip is required"))
	}
	ip = strings.TrimSpace(ip)
	return sc.write(c, "unblocked "+ip, func(s *models.AdminSettings) error {
		kept := s.BlockedIPs[:0]
		found := false
		for _, entry := range s.BlockedIPs {
			if entry == ip {
				found = true
				continue
			}
			kept = append(kept, entry)
		}
		if !found {
			return apperror.NotFound(apperror.CodeNotFound, ip+" is not blocked")
		}
		s.BlockedIPs = kept
		return nil
	})
}

// ClearIPLogs handles DELETE /api/admin/settings/ip-logs
func (sc *SettingsController) ClearIPLogs(c *fiber.Ctx) error {
	return sc.write(c, "ip logs cleared", func(s *models.AdminSettings) error {
		s.IPLogs = map[string]models.IPLog{}
		return nil
	})
}

func (sc *SettingsController) write(c *fiber.Ctx, what string, fn func(*models.AdminSettings) error) error {
	next, err := sc.settings.Update(c.UserContext(), fn)
	if err != nil {
		return apperror.Respond(c, err)
	}
	if err := settings.SetCookie(c, next.BlockedIPs, sc.secureCookie); err != nil {
		log.Warnf("[Settings] could not write settings cookie: %v", err)
	}
	log.Infof("[Settings] %s by %s", what, adminLabel(c))
	return c.JSON(settingsResponse(next, settings.SourceStore))
}

func settingsResponse(s *models.AdminSettings, source string) fiber.Map {
	return fiber.Map{
		"blocked_ips":      s.BlockedIPs,
		"ip_logs":          s.IPLogs,
		"reminder_days":    s.ReminderDays,
		"reminder_enabled": s.ReminderEnabled,
		"source":           source,
	}
}
