package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"MailRamp/internal/models"
)

// Personalization is the data campaign templates are executed with.
type Personalization struct {
	Email     string
	FirstName string
	LastName  string
	Company   string
	Language  string
}

func PersonalizationOf(l models.Lead) Personalization {
	return Personalization{
		Email:     l.Email,
		FirstName: l.FirstName,
		LastName:  l.LastName,
		Company:   l.Company,
		Language:  l.Language,
	}
}

// RenderSubject executes a plain text template.
func RenderSubject(tmpl string, data any) (string, error) {
	t, err := texttemplate.New("subject").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("template parse error: %w", err)
	}

	var out bytes.Buffer
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return strings.TrimSpace(out.String()), nil
}

// RenderBody executes an HTML template, escaping the personalization values.
func RenderBody(tmpl string, data any) (string, error) {
	t, err := htmltemplate.New("body").Option("missingkey=zero").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("template parse error: %w", err)
	}

	var out bytes.Buffer
	if err := t.Execute(&out, data); err != nil {
		return "", fmt.Errorf("template execution error: %w", err)
	}
	return out.String(), nil
}
