package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/billing"
)

// SignatureHeader carries the hex HMAC-SHA256 of the webhook body.
const SignatureHeader = "X-Webhook-Signature"

// Reconciler applies one provider capture event.
type Reconciler interface {
	Reconcile(ctx context.Context, ev billing.CaptureEvent) (billing.Outcome, error)
}

// WebhookObserver is told how every delivery ended.
type WebhookObserver func(outcome, code string)

// WebhookController receives payment provider webhooks
type WebhookController struct {
	reconciler Reconciler
	secret     string
	timeout    time.Duration
	observe    WebhookObserver
}

// NewWebhookController creates the webhook controller. An empty secret
// disables signature verification.
func NewWebhookController(r Reconciler, secret string, timeout time.Duration, observe WebhookObserver) *WebhookController {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if observe == nil {
		observe = func(string, string) {}
	}
	return &WebhookController{reconciler: r, secret: secret, timeout: timeout, observe: observe}
}

// HandleCapture handles POST /api/webhooks/paypal
func (w *WebhookController) HandleCapture(c *fiber.Ctx) error {
	// fasthttp reuses the body buffer after the handler returns
	raw := append([]byte(nil), c.Body()...)

	if w.secret != "" && !billing.VerifyWebhookSignature(raw, c.Get(SignatureHeader), w.secret) {
		log.Warnf("[Webhook] rejected delivery from %s: invalid signature", c.IP())
		w.observe("rejected", apperror.CodeInvalidSignature)
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error":   apperror.CodeInvalidSignature,
			"message": "webhook signature does not match",
		})
	}

	ev, err := billing.ParseCaptureEvent(raw)
	if err != nil {
		w.observe("rejected", apperror.CodeOf(err))
		return apperror.Respond(c, err)
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), w.timeout)
	defer cancel()
	out, err := w.reconciler.Reconcile(ctx, ev)
	if err != nil {
		w.observe("rejected", apperror.CodeOf(err))
		return apperror.Respond(c, err)
	}

	switch {
	case out.Ignored:
		w.observe("ignored", "")
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	case out.Duplicate:
		w.observe("duplicate", "")
		return c.JSON(fiber.Map{"ok": true, "duplicate": true})
	}

	w.observe("recorded", "")
	resp := fiber.Map{
		"ok":            true,
		"next_due_date": out.NextDueDate.Format("2006-01-02"),
	}
	if out.Payment != nil {
		resp["payment_id"] = out.Payment.ID
	}
	return c.JSON(resp)
}
