package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/UnseenElementz/plex-crm-sub001/internal/pkg/reminder"
)

// EmailSender is satisfied by mail.Mailer.
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

var reminderTemplate = template.Must(template.New("reminder").Parse(`<p>Hi {{if .Name}}{{.Name}}{{else}}there{{end}},</p>
{{if eq .DaysLeft 0}}<p>Your {{.Plan}} Plex subscription is due <strong>today</strong> ({{.Due}}).</p>
{{else}}<p>Your {{.Plan}} Plex subscription is due in <strong>{{.DaysLeft}} days</strong>, on {{.Due}}.</p>
{{end}}<p>Please renew in time to keep your access{{if .PlexUsername}} for <strong>{{.PlexUsername}}</strong>{{end}}.</p>
`))

// EmailNotifier sends reminders directly as email.
type EmailNotifier struct {
	sender EmailSender
}

func NewEmailNotifier(sender EmailSender) *EmailNotifier {
	return &EmailNotifier{sender: sender}
}

func (n *EmailNotifier) SendReminder(ctx context.Context, notice reminder.Notice) error {
	subject, body, err := renderReminder(notice)
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, notice.Email, subject, body)
}

func renderReminder(n reminder.Notice) (string, string, error) {
	subject := fmt.Sprintf("Your subscription renews in %d days", n.DaysLeft)
	if n.DaysLeft == 0 {
		subject = "Your subscription renews today"
	}
	var buf bytes.Buffer
	err := reminderTemplate.Execute(&buf, map[string]interface{}{
		"Name":         n.Name,
		"Plan":         n.Plan,
		"PlexUsername": n.PlexUsername,
		"DaysLeft":     n.DaysLeft,
		"Due":          n.DueDate.Format("January 2, 2006"),
	})
	if err != nil {
		return "", "", fmt.Errorf("render reminder: %w", err)
	}
	return subject, buf.String(), nil
}
