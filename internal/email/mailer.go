package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
	"time"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// Template names.
const (
	TemplateMfaCode         = "mfa_code"
	TemplatePasswordReset   = "password_reset"
	TemplateChangeEmailCode = "change_email_code"
)

var subjects = map[string]string{
	TemplateMfaCode:         "Tu código de verificación",
	TemplatePasswordReset:   "Restablecer contraseña",
	TemplateChangeEmailCode: "Confirmá tu nuevo email",
}

// CodeVars son las variables de los templates de código.
type CodeVars struct {
	Name    string
	AppName string
	Code    string
	TTL     string
}

// Mailer renderiza los templates embebidos y los envía con un Sender.
type Mailer struct {
	sender Sender
	html   *htmltpl.Template
	text   *texttpl.Template
}

func NewMailer(s Sender) (*Mailer, error) {
	h, err := htmltpl.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse html templates: %w", err)
	}
	t, err := texttpl.ParseFS(templateFS, "templates/*.txt")
	if err != nil {
		return nil, fmt.Errorf("parse text templates: %w", err)
	}
	return &Mailer{sender: s, html: h, text: t}, nil
}

func (m *Mailer) render(name string, vars any) (string, string, error) {
	var hb, tb bytes.Buffer
	if err := m.html.ExecuteTemplate(&hb, name+".html", vars); err != nil {
		return "", "", fmt.Errorf("render %s.html: %w", name, err)
	}
	if err := m.text.ExecuteTemplate(&tb, name+".txt", vars); err != nil {
		return "", "", fmt.Errorf("render %s.txt: %w", name, err)
	}
	return hb.String(), tb.String(), nil
}

func (m *Mailer) send(ctx context.Context, to, name string, vars CodeVars) error {
	html, text, err := m.render(name, vars)
	if err != nil {
		return err
	}
	return m.sender.Send(ctx, Message{To: to, Subject: subjects[name], HTML: html, Text: text})
}

func ttlText(d time.Duration) string {
	return fmt.Sprintf("%d minutos", int(d.Round(time.Minute).Minutes()))
}

// SendMfaCode envía el código de MFA por email.
func (m *Mailer) SendMfaCode(ctx context.Context, to, name, appName, code string, ttl time.Duration) error {
	return m.send(ctx, to, TemplateMfaCode, CodeVars{Name: name, AppName: appName, Code: code, TTL: ttlText(ttl)})
}

// SendPasswordResetCode envía el código de reset.
func (m *Mailer) SendPasswordResetCode(ctx context.Context, to, name, code string, ttl time.Duration) error {
	return m.send(ctx, to, TemplatePasswordReset, CodeVars{Name: name, Code: code, TTL: ttlText(ttl)})
}

// SendChangeEmailCode envía el código al email nuevo.
func (m *Mailer) SendChangeEmailCode(ctx context.Context, to, name, code string, ttl time.Duration) error {
	return m.send(ctx, to, TemplateChangeEmailCode, CodeVars{Name: name, Code: code, TTL: ttlText(ttl)})
}
