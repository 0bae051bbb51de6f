// Package sms envía códigos MFA por SMS.
package sms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

var ErrInvalidNumber = errors.New("sms: invalid phone number")

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// NormalizeNumber quita espacios, guiones y paréntesis y exige E.164.
func NormalizeNumber(n string) (string, error) {
	n = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, n)
	if !e164.MatchString(n) {
		return "", ErrInvalidNumber
	}
	return n, nil
}

// MaskNumber deja visibles los últimos 4 dígitos.
func MaskNumber(n string) string {
	if len(n) <= 4 {
		return n
	}
	return strings.Repeat("*", len(n)-4) + n[len(n)-4:]
}

// Sender entrega un SMS.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// LogSender solo loguea el mensaje (dev).
type LogSender struct{}

func (LogSender) Send(ctx context.Context, to, body string) error {
	logger.From(ctx).Info("sms (log sender)",
		logger.Component("sms.log"),
		logger.String("to", MaskNumber(to)),
		logger.String("body", body),
	)
	return nil
}

// GatewaySender hace POST JSON a un gateway HTTP genérico:
//
//	{"from": "...", "to": "+54911...", "body": "..."}
//
// con Authorization: Bearer <api key>.
type GatewaySender struct {
	URL     string
	APIKey  string
	From    string
	Client  *http.Client
	limiter *rate.Limiter
}

// NewGatewaySender limita los envíos salientes a perSecond (burst igual).
func NewGatewaySender(cfg config.SMSConfig, perSecond int) *GatewaySender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if perSecond <= 0 {
		perSecond = 10
	}
	return &GatewaySender{
		URL:     cfg.GatewayURL,
		APIKey:  cfg.APIKey,
		From:    cfg.From,
		Client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
	}
}

type gatewayRequest struct {
	From string `json:"from,omitempty"`
	To   string `json:"to"`
	Body string `json:"body"`
}

func (g *GatewaySender) Send(ctx context.Context, to, body string) error {
	log := logger.From(ctx).With(logger.Component("sms.gateway"))

	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("sms: rate wait: %w", err)
	}
	payload, err := json.Marshal(gatewayRequest{From: g.From, To: to, Body: body})
	if err != nil {
		return fmt.Errorf("sms: encode: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("sms: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.APIKey)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		log.Error("gateway request failed", logger.Err(err))
		return fmt.Errorf("sms: send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		log.Error("gateway rejected message", logger.Status(resp.StatusCode), logger.String("body", string(msg)))
		return fmt.Errorf("sms: gateway status %d", resp.StatusCode)
	}
	log.Debug("sms sent", logger.String("to", MaskNumber(to)))
	return nil
}

// NewSender elige el provider configurado.
func NewSender(cfg config.SMSConfig) (Sender, error) {
	switch cfg.Provider {
	case "", "log":
		return LogSender{}, nil
	case "gateway":
		if cfg.GatewayURL == "" {
			return nil, errors.New("sms: gateway_url is required")
		}
		return NewGatewaySender(cfg, 10), nil
	default:
		return nil, fmt.Errorf("sms: unknown provider %q", cfg.Provider)
	}
}

// CodeMessage es el texto del SMS de MFA.
func CodeMessage(appName, code string) string {
	if appName == "" {
		return fmt.Sprintf("Tu código de verificación es %s", code)
	}
	return fmt.Sprintf("%s: tu código de verificación es %s", appName, code)
}
