// Package oauth implementa los endpoints OAuth2/OIDC: authorize (con SSO
// y puente SAML), token (authorization_code, refresh_token,
// client_credentials), logout, userinfo y discovery.
package oauth

import (
	"context"
	"time"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	jwtx "github.com/dropDatabas3/melody/internal/jwt"
)

// SamlLogin inicia el login contra un IdP SAML (policy saml_sso_*).
type SamlLogin interface {
	Login(ctx context.Context, p flow.AuthorizeParams) (string, error)
}

// Deps contiene las dependencias de los services oauth.
type Deps struct {
	Apps       repository.AppRepository
	Users      repository.UserRepository
	Cache      cache.Client
	Codes      *flow.Codes
	Sessions   *flow.Sessions
	Resolver   *flow.Resolver
	Validator  *flow.RequestValidator
	Consent    flow.ConsentChecker
	Issuer     *jwtx.Issuer
	SAML       SamlLogin
	RefreshTTL time.Duration
	// IdentityUI es la base de las páginas de sign-in.
	IdentityUI string
}

// Services agrupa los services del dominio oauth.
type Services struct {
	Authorize AuthorizeService
	Token     TokenService
	OIDC      OIDCService
}

func NewServices(d Deps) Services {
	return Services{
		Authorize: NewAuthorizeService(d),
		Token:     NewTokenService(d),
		OIDC:      NewOIDCService(d),
	}
}
