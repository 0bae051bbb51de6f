// Package health contiene el service de readiness.
package health

import (
	"context"
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	dto "github.com/dropDatabas3/melody/internal/http/dto/health"
	jwtx "github.com/dropDatabas3/melody/internal/jwt"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

const (
	StatusReady       = "ready"
	StatusUnavailable = "unavailable"
)

type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// Deps: los checks nil se reportan como disabled.
type Deps struct {
	StoreCheck func(ctx context.Context) error
	CacheCheck func(ctx context.Context) error
	Issuer     *jwtx.Issuer
	Version    string
	// Timeout por componente.
	Timeout time.Duration
}

type healthService struct {
	deps Deps
}

func NewHealthService(d Deps) HealthService {
	if d.Timeout <= 0 {
		d.Timeout = 2 * time.Second
	}
	return &healthService{deps: d}
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("health"), logger.Op("Check"))

	out := dto.HealthResponse{
		Version:    s.deps.Version,
		Components: make(map[string]dto.HealthStatus, 3),
		Timestamp:  time.Now().UTC(),
	}
	critical := false

	run := func(name string, check func(context.Context) error) {
		if check == nil {
			out.Components[name] = dto.HealthStatus{Status: "disabled"}
			return
		}
		cctx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
		defer cancel()
		if err := check(cctx); err != nil {
			out.Components[name] = dto.HealthStatus{Status: "error", Message: err.Error()}
			critical = true
			log.Error(name+" unavailable", logger.Err(err))
			return
		}
		out.Components[name] = dto.HealthStatus{Status: "ok"}
	}

	run("store", s.deps.StoreCheck)
	// sin almacén efímero no hay auth codes
	run("cache", s.deps.CacheCheck)
	if s.deps.Issuer != nil {
		run("keystore", s.checkKeystore)
	} else {
		out.Components["keystore"] = dto.HealthStatus{Status: "error", Message: "issuer not initialized"}
		critical = true
	}
	if s.deps.Issuer != nil {
		if k, err := s.deps.Issuer.Keys.Current(ctx); err == nil {
			out.ActiveKeyID = k.KID
		}
	}

	out.Status = StatusReady
	if critical {
		out.Status = StatusUnavailable
	}
	return out
}

// checkKeystore firma y verifica un token efímero con la clave actual.
func (s *healthService) checkKeystore(ctx context.Context) error {
	now := time.Now()
	raw, _, err := s.deps.Issuer.Sign(ctx, jwtv5.MapClaims{
		"iss": s.deps.Issuer.Iss,
		"sub": "selfcheck",
		"aud": "health",
		"iat": now.Unix(),
		"exp": now.Add(30 * time.Second).Unix(),
	})
	if err != nil {
		return err
	}
	claims, err := s.deps.Issuer.Verify(ctx, raw)
	if err != nil {
		return err
	}
	if sub, _ := claims["sub"].(string); sub != "selfcheck" {
		return errors.New("keystore: self-check mismatch")
	}
	return nil
}
