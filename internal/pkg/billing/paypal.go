package billing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/apperror"
)

type captureWebhookPayload struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID    string `json:"id"`
		Payer struct {
			EmailAddress string `json:"email_address"`
		} `json:"payer"`
		Amount struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	} `json:"resource"`
}

// ParseCaptureEvent decodes a provider webhook body. The capture id is taken
// from resource.id, then the event id, then a hash of the raw body.
func ParseCaptureEvent(raw []byte) (CaptureEvent, error) {
	var p captureWebhookPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return CaptureEvent{}, &apperror.Error{
			Kind:    apperror.KindValidation,
			Code:    apperror.CodeInvalidPayload,
			Message: "payload is not valid JSON",
			Err:     err,
		}
	}

	captureID := strings.TrimSpace(p.Resource.ID)
	if captureID == "" {
		captureID = strings.TrimSpace(p.ID)
	}
	if captureID == "" {
		sum := sha256.Sum256(raw)
		captureID = "hash:" + hex.EncodeToString(sum[:])
	}

	return CaptureEvent{
		EventID:     strings.TrimSpace(p.ID),
		EventType:   strings.TrimSpace(p.EventType),
		CaptureID:   captureID,
		PayerEmail:  strings.TrimSpace(p.Resource.Payer.EmailAddress),
		AmountValue: strings.TrimSpace(p.Resource.Amount.Value),
		Currency:    strings.ToUpper(strings.TrimSpace(p.Resource.Amount.CurrencyCode)),
	}, nil
}
