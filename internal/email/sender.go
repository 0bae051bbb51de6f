// Package email envía los mails del flujo (códigos MFA, reset de
// password, cambio de email).
package email

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// Message es un mail multipart (texto + html).
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender entrega un Message.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// SMTPSender implementa Sender usando SMTP.
type SMTPSender struct {
	Host               string
	Port               int
	From               string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// FromConfig crea un SMTPSender desde la config.
func FromConfig(cfg config.SMTPConfig) *SMTPSender {
	mode := cfg.TLSMode
	if mode == "" {
		mode = "auto"
	}
	return &SMTPSender{
		Host:    cfg.Host,
		Port:    cfg.Port,
		From:    cfg.From,
		User:    cfg.Username,
		Pass:    cfg.Password,
		TLSMode: mode,
	}
}

func (s *SMTPSender) message(m Message) *mail.Message {
	msg := mail.NewMessage()
	msg.SetHeader("From", s.From)
	msg.SetHeader("To", m.To)
	msg.SetHeader("Subject", m.Subject)

	// multipart/alternative si hay ambas versiones
	if m.Text != "" {
		msg.SetBody("text/plain", m.Text)
	}
	if m.HTML != "" {
		if m.Text == "" {
			msg.SetBody("text/html", m.HTML)
		} else {
			msg.AddAlternative("text/html", m.HTML)
		}
	}
	return msg
}

func (s *SMTPSender) Send(ctx context.Context, m Message) error {
	log := logger.From(ctx).With(
		logger.Component("email.smtp"),
		logger.String("host", s.Host),
		logger.Int("port", s.Port),
	)

	d := mail.NewDialer(s.Host, s.Port, s.User, s.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.Host,
		InsecureSkipVerify: s.InsecureSkipVerify, // solo dev
	}
	switch s.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	default:
		// "auto": go-mail negocia STARTTLS si el server lo ofrece
	}

	if err := d.DialAndSend(s.message(m)); err != nil {
		log.Error("smtp send failed", logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	log.Debug("email sent", logger.String("subject", m.Subject))
	return nil
}

// LogSender solo loguea; se usa en dev cuando no hay SMTP.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, m Message) error {
	logger.From(ctx).Info("email (log sender)",
		logger.Component("email.log"),
		logger.String("to", m.To),
		logger.String("subject", m.Subject),
		logger.String("text", m.Text),
	)
	return nil
}

// NewSender elige SMTP si hay host configurado.
func NewSender(cfg config.SMTPConfig) Sender {
	if cfg.Host == "" {
		return LogSender{}
	}
	return FromConfig(cfg)
}
