package oauth

import (
	"context"

	jose "github.com/go-jose/go-jose/v4"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/oauth"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	jwtx "github.com/dropDatabas3/melody/internal/jwt"
)

// OIDCService cubre discovery, JWKS y userinfo.
type OIDCService interface {
	Discovery(ctx context.Context) dto.Discovery
	JWKS(ctx context.Context) (jose.JSONWebKeySet, error)
	UserInfo(ctx context.Context, accessToken string) (map[string]any, error)
}

type oidcService struct {
	deps Deps
}

func NewOIDCService(d Deps) OIDCService { return &oidcService{deps: d} }

func (s *oidcService) Discovery(context.Context) dto.Discovery {
	iss := s.deps.Issuer.Iss
	return dto.Discovery{
		Issuer:                            iss,
		AuthorizationEndpoint:             iss + "/oauth2/v1/authorize",
		TokenEndpoint:                     iss + "/oauth2/v1/token",
		UserinfoEndpoint:                  iss + "/oauth2/v1/userinfo",
		EndSessionEndpoint:                iss + "/oauth2/v1/logout",
		JwksURI:                           iss + "/.well-known/jwks.json",
		ResponseTypesSupported:            []string{"code"},
		GrantTypesSupported:               []string{dto.GrantAuthorizationCode, dto.GrantRefreshToken, dto.GrantClientCredentials},
		SubjectTypesSupported:             []string{"public"},
		IDTokenSigningAlgValuesSupported:  []string{jwtx.AlgRS256},
		ScopesSupported:                   []string{types.ScopeOpenID, types.ScopeProfile, types.ScopeEmail, types.ScopeOfflineAccess},
		ClaimsSupported:                   []string{"sub", "iss", "aud", "exp", "iat", "auth_time", "nonce", "email", "email_verified", "given_name", "family_name", "locale"},
		CodeChallengeMethodsSupported:     []string{"S256", "plain"},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post", "none"},
	}
}

func (s *oidcService) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	set, err := s.deps.Issuer.Keys.JWKS(ctx)
	if err != nil {
		return set, httperrors.ErrUnavailable.WithCause(err)
	}
	return set, nil
}

// UserInfo verifica el access token (cualquier clave vigente) y retorna
// los claims de perfil según su scope.
func (s *oidcService) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	claims, err := s.deps.Issuer.Verify(ctx, accessToken)
	if err != nil {
		return nil, httperrors.ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	scope, _ := claims["scope"].(string)
	scopes := splitScope(scope)

	u, err := s.deps.Users.GetUserByAuthID(ctx, sub)
	if repository.IsNotFound(err) {
		return nil, httperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if !u.IsActive {
		return nil, httperrors.ErrUserDisabled
	}
	out := profileClaims(u, scopes)
	out["sub"] = u.AuthID
	return out, nil
}
