package mailer

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/aliuyar1234/seatdesk/internal/partners"
)

//go:embed templates/*
var templateFS embed.FS

// ActivationData fills the license activation email.
type ActivationData struct {
	Program       partners.Program
	Email         string
	AdminName     string
	ActivationURL string
}

// InvitationData fills the team invitation email.
type InvitationData struct {
	Program     partners.Program
	Email       string
	InviterName string
	TeamName    string
	Role        string
	AcceptURL   string
	SignupURL   string
	ExpiresAt   string
}

// RoleArticle is "an" for "admin" and "a" otherwise.
func (d InvitationData) RoleArticle() string {
	if d.Role == "admin" {
		return "an"
	}
	return "a"
}

// Templates renders the embedded email templates.
type Templates struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

func LoadTemplates() (*Templates, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse html email templates: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("failed to parse text email templates: %w", err)
	}
	return &Templates{html: html, text: text}, nil
}

func ActivationSubject(p partners.Program) string {
	return fmt.Sprintf("Welcome to %s! 🎉", p.ProgramName)
}

func InvitationSubject(p partners.Program, teamName string) string {
	return fmt.Sprintf("You've been invited to join %s on %s! 🤝", teamName, p.ProgramName)
}

func (t *Templates) Activation(data ActivationData) (Message, error) {
	msg, err := t.render("activation", data)
	if err != nil {
		return Message{}, err
	}
	msg.To = data.Email
	msg.Subject = ActivationSubject(data.Program)
	return msg, nil
}

func (t *Templates) Invitation(data InvitationData) (Message, error) {
	msg, err := t.render("invitation", data)
	if err != nil {
		return Message{}, err
	}
	msg.To = data.Email
	msg.Subject = InvitationSubject(data.Program, data.TeamName)
	return msg, nil
}

func (t *Templates) render(name string, data any) (Message, error) {
	var html, text bytes.Buffer
	if err := t.html.ExecuteTemplate(&html, name+".html", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s html: %w", name, err)
	}
	if err := t.text.ExecuteTemplate(&text, name+".txt", data); err != nil {
		return Message{}, fmt.Errorf("failed to render %s text: %w", name, err)
	}
	return Message{HTML: html.String(), Text: text.String()}, nil
}
