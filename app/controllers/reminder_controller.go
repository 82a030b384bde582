package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/reminder"
)

// ReminderRunner executes one reminder batch.
type ReminderRunner interface {
	Run(ctx context.Context) (reminder.Result, error)
}

// RunObserver is told how every triggered batch ended.
type RunObserver func(trigger, status string)

// ReminderController exposes the manual reminder trigger
type ReminderController struct {
	runner  ReminderRunner
	timeout time.Duration
	observe RunObserver
}

func NewReminderController(runner ReminderRunner, timeout time.Duration, observe RunObserver) *ReminderController {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	if observe == nil {
		observe = func(string, string) {}
	}
	return &ReminderController{runner: runner, timeout: timeout, observe: observe}
}

// Trigger handles POST /api/cron/reminders. The batch runs even when
// scheduled runs are disabled in the settings.
func (rc *ReminderController) Trigger(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), rc.timeout)
	defer cancel()

	res, err := rc.runner.Run(ctx)
	status := RunStatus(res, err)
	rc.observe("http", status)

	if err != nil && !res.Cancelled {
		if !errors.Is(err, reminder.ErrRunInProgress) {
			log.Errorf("[Reminder] triggered run %s failed: %v", res.RunID, err)
		}
		return apperror.Respond(c, err)
	}

	code := fiber.StatusOK
	if res.Failed > 0 || res.Cancelled {
		code = fiber.StatusPartialContent
	}
	return c.Status(code).JSON(fiber.Map{
		"run_id":  res.RunID,
		"scanned": res.Scanned,
		"sent":    res.Sent,
		"skipped": res.AlreadySent,
		"failed":  res.Failed,
	})
}

// RunStatus labels a finished batch for metrics and logs.
func RunStatus(res reminder.Result, err error) string {
	switch {
	case errors.Is(err, reminder.ErrRunInProgress):
		return "locked"
	case res.Cancelled:
		return "cancelled"
	case err != nil:
		return "error"
	case res.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}
