package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

var (
	templatesOnce sync.Once
	templates     *template.Template
	templatesErr  error
)

func loadTemplates() (*template.Template, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = template.New("email").Funcs(template.FuncMap{
			"formatTime": formatTime,
		}).ParseFS(templateFS, "templates/*.html")
	})
	return templates, templatesErr
}

// Render executes templateName with data and returns the subject and HTML body.
// A "subject" key in data overrides the template default.
func Render(templateName string, data map[string]any) (string, string, error) {
	t, err := loadTemplates()
	if err != nil {
		return "", "", fmt.Errorf("failed to parse templates: %w", err)
	}
	tmpl := t.Lookup(templateName + ".html")
	if tmpl == nil {
		return "", "", fmt.Errorf("unknown email template %q", templateName)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data); err != nil {
		return "", "", fmt.Errorf("failed to execute template: %w", err)
	}

	subject := defaultSubject(templateName, data)
	if subj, ok := data["subject"].(string); ok && subj != "" {
		subject = subj
	}
	return subject, body.String(), nil
}

func defaultSubject(templateName string, data map[string]any) string {
	title, _ := data["title"].(string)
	switch templateName {
	case "reminder_invitation":
		return fmt.Sprintf("You're invited: %s", title)
	case "reminder_response_needed":
		return fmt.Sprintf("Reminder: please respond to %s", title)
	case "reminder_upcoming_meeting":
		return fmt.Sprintf("Starting soon: %s", title)
	default:
		return "Notification from Meetini"
	}
}
