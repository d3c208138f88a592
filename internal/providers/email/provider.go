package email

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var (
	ErrInvalidConfig   = errors.New("invalid_email_config")
	ErrNoRecipients    = errors.New("no_recipients")
	ErrUnknownTemplate = errors.New("unknown_email_template")
	ErrSendFailed      = errors.New("email_send_failed")
)

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error
}

var subjects = map[string]string{
	"seat_assigned": "You have been given a seat",
}

// Render executes a named template and resolves its subject. A "subject"
// key in data overrides the template default.
func Render(templateName string, data map[string]any) (string, string, error) {
	tmpl := templates.Lookup(templateName + ".html")
	if tmpl == nil {
		return "", "", fmt.Errorf("%w: %s", ErrUnknownTemplate, templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("execute template %s: %w", templateName, err)
	}

	subject := subjects[templateName]
	if subj, ok := data["subject"].(string); ok && subj != "" {
		subject = subj
	}
	if subject == "" {
		subject = "Notification from Seatly"
	}
	return subject, body.String(), nil
}

type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return nil
}

func (p *NoOpProvider) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	_, _, err := Render(templateName, data)
	return err
}
