// Package consent decide cuándo pedir consentimiento y registra la
// aceptación del usuario.
package consent

import (
	"context"
	"fmt"
	"slices"

	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/consent"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// Service define las operaciones de consentimiento.
type Service interface {
	// ShouldCollectConsent: true si consent está habilitado, hay al menos
	// un scope que no es de sistema y el usuario no aceptó la app.
	ShouldCollectConsent(ctx context.Context, userID, appID string, scopes []string) (bool, error)
	// CreateUserAppConsent es idempotente.
	CreateUserAppConsent(ctx context.Context, userID, appID string) (*repository.Consent, error)
	// ConsentInfo describe la app y los scopes pedidos por el flujo.
	ConsentInfo(ctx context.Context, code string) (*dto.InfoResponse, error)
	// Accept registra el consentimiento y reanuda el flujo.
	Accept(ctx context.Context, code string) (*types.AuthorizeResult, error)
}

// Checker es la parte sin estado de flujo; el resolver la usa directo.
type Checker struct {
	Consents repository.ConsentRepository
	Config   config.ConsentConfig
}

// requested retorna los scopes que requieren consentimiento.
func (c *Checker) requested(scopes []string) []string {
	out := make([]string, 0, len(scopes))
	for _, sc := range scopes {
		if !slices.Contains(c.Config.SystemScopes, sc) && !slices.Contains(out, sc) {
			out = append(out, sc)
		}
	}
	return out
}

func (c *Checker) ShouldCollectConsent(ctx context.Context, userID, appID string, scopes []string) (bool, error) {
	if !c.Config.Enabled || len(c.requested(scopes)) == 0 {
		return false, nil
	}
	ok, err := c.Consents.HasConsent(ctx, userID, appID)
	if err != nil {
		return false, fmt.Errorf("has consent: %w", err)
	}
	return !ok, nil
}

func (c *Checker) CreateUserAppConsent(ctx context.Context, userID, appID string) (*repository.Consent, error) {
	out, err := c.Consents.UpsertConsent(ctx, userID, appID)
	if err != nil {
		return nil, fmt.Errorf("upsert consent: %w", err)
	}
	return out, nil
}

type Deps struct {
	Checker  *Checker
	Scopes   repository.ScopeRepository
	Codes    *flow.Codes
	Resolver *flow.Resolver
}

type consentService struct {
	*Checker
	deps Deps
}

func NewService(d Deps) Service {
	return &consentService{Checker: d.Checker, deps: d}
}

func (s *consentService) ConsentInfo(ctx context.Context, code string) (*dto.InfoResponse, error) {
	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageConsent)
	if err != nil {
		return nil, err
	}
	names := s.requested(body.Request.Scopes)
	known, err := s.deps.Scopes.ListScopesByNames(ctx, names)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	notes := make(map[string]string, len(known))
	for _, k := range known {
		notes[k.Name] = k.Note
	}
	out := &dto.InfoResponse{AppName: body.AppName, Scopes: make([]dto.ScopeInfo, 0, len(names))}
	for _, n := range names {
		out.Scopes = append(out.Scopes, dto.ScopeInfo{Name: n, Note: notes[n]})
	}
	return out, nil
}

func (s *consentService) Accept(ctx context.Context, code string) (*types.AuthorizeResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("consent.accept"))

	body, err := s.deps.Codes.LoadAt(ctx, code, types.NextPageConsent)
	if err != nil {
		return nil, err
	}
	if _, err := s.CreateUserAppConsent(ctx, body.User.ID, body.AppID); err != nil {
		log.Error("create consent failed", logger.Err(err))
		return nil, httperrors.Internal(err)
	}
	log.Info("consent granted", logger.UserID(body.User.ID), logger.ClientID(body.Request.ClientID))
	return s.deps.Resolver.Resolve(ctx, flow.EntryConsent, code, body)
}
