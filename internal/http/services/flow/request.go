package flow

import (
	"context"
	"slices"
	"strings"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/security/pkce"
	"github.com/dropDatabas3/melody/internal/validation"
)

// AuthorizeParams son los parámetros crudos del /authorize; los sign-in
// de las páginas de identidad los reenvían tal cual.
type AuthorizeParams struct {
	ClientID            string `json:"client_id"`
	RedirectURI         string `json:"redirect_uri"`
	ResponseType        string `json:"response_type"`
	State               string `json:"state"`
	Scope               string `json:"scope"`
	CodeChallenge       string `json:"code_challenge"`
	CodeChallengeMethod string `json:"code_challenge_method"`
	Nonce               string `json:"nonce"`
	Policy              string `json:"policy"`
	Org                 string `json:"org"`
	Locale              string `json:"locale"`
}

// RequestValidator valida AuthorizeParams contra la app registrada.
type RequestValidator struct {
	Apps    repository.AppRepository
	Orgs    repository.OrgRepository
	Blocked []string
}

// Validate retorna la app y el AuthRequest normalizado.
func (v *RequestValidator) Validate(ctx context.Context, p AuthorizeParams) (*repository.App, types.AuthRequest, error) {
	var req types.AuthRequest
	clientID := strings.TrimSpace(p.ClientID)
	if clientID == "" {
		return nil, req, httperrors.ErrInvalidRequest.WithDetail("client_id requerido")
	}
	app, err := v.Apps.GetAppByClientID(ctx, clientID)
	if repository.IsNotFound(err) {
		return nil, req, httperrors.ErrInvalidClient
	}
	if err != nil {
		return nil, req, httperrors.Internal(err)
	}
	if !app.IsActive || app.Type != repository.AppTypeSPA {
		return nil, req, httperrors.ErrInvalidClient
	}
	if !app.AllowsRedirect(p.RedirectURI) {
		return nil, req, httperrors.ErrInvalidRedirectURI
	}
	if p.ResponseType != "code" {
		return nil, req, httperrors.ErrUnsupportedResponseType
	}

	scopes := strings.Fields(p.Scope)
	if len(scopes) == 0 {
		return nil, req, httperrors.ErrInvalidScope.WithDetail("scope requerido")
	}
	if bad := validation.FirstInvalidScope(scopes); bad != "" {
		return nil, req, httperrors.ErrInvalidScope.WithDetail("scope mal formado: " + bad)
	}

	// Las SPA son clients públicos: PKCE obligatorio.
	if p.CodeChallenge == "" {
		return nil, req, httperrors.ErrInvalidRequest.WithDetail("code_challenge requerido")
	}
	method, err := pkce.NormalizeMethod(p.CodeChallengeMethod)
	if err != nil {
		return nil, req, httperrors.ErrInvalidRequest.WithDetail("code_challenge_method no soportado")
	}
	if err := pkce.CheckChallenge(p.CodeChallenge, method); err != nil {
		return nil, req, httperrors.ErrInvalidRequest.WithDetail("code_challenge mal formado")
	}

	policy, ok := types.ParsePolicy(p.Policy)
	if !ok || v.blocked(policy) {
		return nil, req, httperrors.ErrInvalidPolicy
	}

	if p.Org != "" && v.Orgs != nil {
		if _, err := v.Orgs.GetOrgBySlug(ctx, p.Org); err != nil {
			if repository.IsNotFound(err) {
				return nil, req, httperrors.ErrInvalidRequest.WithDetail("org desconocida")
			}
			return nil, req, httperrors.Internal(err)
		}
	}

	req = types.AuthRequest{
		ClientID:            app.ClientID,
		RedirectURI:         p.RedirectURI,
		ResponseType:        p.ResponseType,
		State:               p.State,
		Scopes:              scopes,
		CodeChallenge:       p.CodeChallenge,
		CodeChallengeMethod: method,
		Nonce:               p.Nonce,
		Policy:              policy,
		Org:                 p.Org,
		Locale:              p.Locale,
	}
	return app, req, nil
}

func (v *RequestValidator) blocked(p types.Policy) bool {
	if slices.Contains(v.Blocked, string(p)) {
		return true
	}
	// "saml_sso" bloquea todos los IdPs.
	return p.IsSaml() && slices.Contains(v.Blocked, "saml_sso")
}
