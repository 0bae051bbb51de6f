package oauth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/melody/internal/audit"
	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	dto "github.com/dropDatabas3/melody/internal/http/dto/oauth"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	jwtx "github.com/dropDatabas3/melody/internal/jwt"
	"github.com/dropDatabas3/melody/internal/metrics"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	"github.com/dropDatabas3/melody/internal/security/pkce"
	tokens "github.com/dropDatabas3/melody/internal/security/token"
)

// TokenService emite y revoca tokens.
type TokenService interface {
	// Token despacha por grant_type.
	Token(ctx context.Context, in dto.TokenRequest) (*dto.TokenResponse, error)
	ExchangeAuthCode(ctx context.Context, clientID, code, codeVerifier, redirectURI string) (*dto.TokenResponse, error)
	RefreshAccessToken(ctx context.Context, clientID, refreshToken string) (*dto.TokenResponse, error)
	ClientCredentialsToken(ctx context.Context, clientID, clientSecret string, scopes []string) (*dto.TokenResponse, error)
	// Logout revoca el refresh token (si viene) y borra la sesión SSO del
	// client dueño del access token.
	Logout(ctx context.Context, accessToken, refreshToken string) error
}

type tokenService struct {
	deps     Deps
	refresh  cache.Namespace[types.RefreshTokenBody]
	ttl      time.Duration
	tokenLen int
}

func NewTokenService(d Deps) TokenService {
	ttl := d.RefreshTTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &tokenService{
		deps:     d,
		refresh:  cache.NewNamespace[types.RefreshTokenBody](d.Cache, "refreshToken"),
		ttl:      ttl,
		tokenLen: 32,
	}
}

// refreshKey: el valor opaco nunca se guarda en claro.
func refreshKey(token string) string { return tokens.SHA256Hex(token) }

func (s *tokenService) Token(ctx context.Context, in dto.TokenRequest) (*dto.TokenResponse, error) {
	switch strings.TrimSpace(in.GrantType) {
	case dto.GrantAuthorizationCode:
		return s.ExchangeAuthCode(ctx, in.ClientID, in.Code, in.CodeVerifier, in.RedirectURI)
	case dto.GrantRefreshToken:
		return s.RefreshAccessToken(ctx, in.ClientID, in.RefreshToken)
	case dto.GrantClientCredentials:
		return s.ClientCredentialsToken(ctx, in.ClientID, in.ClientSecret, splitScope(in.Scope))
	case "":
		return nil, httperrors.ErrInvalidRequest.WithDetail("grant_type requerido")
	default:
		return nil, httperrors.ErrUnsupportedGrantType
	}
}

func (s *tokenService) ExchangeAuthCode(ctx context.Context, clientID, code, codeVerifier, redirectURI string) (*dto.TokenResponse, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Op("oauth.exchange"),
		logger.ClientID(clientID),
	)

	body, err := s.deps.Codes.Consume(ctx, strings.TrimSpace(code))
	if err != nil {
		metrics.AuthFailure(httperrors.FromError(err).Code)
		return nil, err
	}
	if !body.Authorized || body.Request.ClientID != clientID {
		log.Info("code not exchangeable",
			logger.Bool("authorized", body.Authorized),
			logger.String("next_page", string(body.NextPage)),
		)
		metrics.AuthFailure(httperrors.ErrInvalidAuthCode.Code)
		return nil, httperrors.ErrInvalidAuthCode
	}
	if redirectURI != "" && redirectURI != body.Request.RedirectURI {
		return nil, httperrors.ErrInvalidAuthCode
	}
	if err := pkce.Verify(codeVerifier, body.Request.CodeChallenge, body.Request.CodeChallengeMethod); err != nil {
		log.Info("pkce rejected", logger.Err(err))
		metrics.AuthFailure(httperrors.ErrInvalidCodeVerifier.Code)
		return nil, httperrors.ErrInvalidCodeVerifier
	}

	app, err := s.deps.Apps.GetAppByID(ctx, body.AppID)
	if repository.IsNotFound(err) {
		return nil, httperrors.ErrInvalidClient
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if !app.IsActive {
		return nil, httperrors.ErrInvalidClient
	}

	user, err := s.deps.Users.GetUserByID(ctx, body.User.ID)
	if repository.IsNotFound(err) {
		return nil, httperrors.ErrNoUser
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if !user.IsActive {
		return nil, httperrors.ErrUserDisabled
	}

	// el consentimiento pudo revocarse entre el authorize y el canje
	if s.deps.Consent != nil {
		need, err := s.deps.Consent.ShouldCollectConsent(ctx, user.ID, app.ID, body.Request.Scopes)
		if err != nil {
			return nil, httperrors.Internal(err)
		}
		if need {
			return nil, httperrors.ErrConsentRequired
		}
	}

	req := body.Request
	resp, err := s.access(ctx, jwtx.AccessClaims{
		Subject:  user.AuthID,
		ClientID: clientID,
		Scope:    req.ScopeString(),
		Roles:    user.Roles,
	})
	if err != nil {
		return nil, err
	}

	if req.HasScope(types.ScopeOpenID) {
		idt, _, err := s.deps.Issuer.IssueIDToken(ctx, jwtx.IDClaims{
			Subject:  user.AuthID,
			ClientID: clientID,
			Nonce:    req.Nonce,
			AuthTime: body.AuthTime,
			Profile:  profileClaims(user, req.Scopes),
		})
		if err != nil {
			return nil, httperrors.Internal(err)
		}
		resp.IDToken = idt
	}

	if req.HasScope(types.ScopeOfflineAccess) {
		rt, err := tokens.GenerateOpaqueToken(s.tokenLen)
		if err != nil {
			return nil, httperrors.Internal(err)
		}
		rb := types.RefreshTokenBody{AuthID: user.AuthID, ClientID: clientID, Scope: req.ScopeString(), Roles: user.Roles}
		if err := s.refresh.Put(ctx, refreshKey(rt), rb, s.ttl); err != nil {
			return nil, httperrors.Internal(err)
		}
		resp.RefreshToken = rt
	}

	metrics.TokenIssued(dto.GrantAuthorizationCode)
	log.Info("code exchanged", logger.AuthID(user.AuthID))
	return resp, nil
}

func (s *tokenService) access(ctx context.Context, c jwtx.AccessClaims) (*dto.TokenResponse, error) {
	at, exp, err := s.deps.Issuer.IssueAccess(ctx, c)
	if err != nil {
		if errors.Is(err, jwtx.ErrNoSigningKey) {
			return nil, httperrors.ErrUnavailable.WithCause(err)
		}
		return nil, httperrors.Internal(err)
	}
	return &dto.TokenResponse{
		AccessToken: at,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.deps.Issuer.AccessTTL.Seconds()),
		ExpiresOn:   exp.Unix(),
		Scope:       c.Scope,
	}, nil
}

// RefreshAccessToken no rota el refresh token.
func (s *tokenService) RefreshAccessToken(ctx context.Context, clientID, refreshToken string) (*dto.TokenResponse, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, httperrors.ErrInvalidRefreshToken
	}
	rb, err := s.refresh.Get(ctx, refreshKey(refreshToken))
	if cache.IsNotFound(err) {
		return nil, httperrors.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if rb.ClientID != clientID {
		return nil, httperrors.ErrInvalidRefreshToken
	}
	u, err := s.deps.Users.GetUserByAuthID(ctx, rb.AuthID)
	if repository.IsNotFound(err) || (err == nil && !u.IsActive) {
		return nil, httperrors.ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}

	resp, err := s.access(ctx, jwtx.AccessClaims{
		Subject:  rb.AuthID,
		ClientID: rb.ClientID,
		Scope:    rb.Scope,
		Roles:    rb.Roles,
	})
	if err != nil {
		return nil, err
	}
	resp.RefreshToken = refreshToken
	metrics.TokenIssued(dto.GrantRefreshToken)
	return resp, nil
}

func (s *tokenService) ClientCredentialsToken(ctx context.Context, clientID, clientSecret string, scopes []string) (*dto.TokenResponse, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.client_credentials"), logger.ClientID(clientID))

	app, err := s.deps.Apps.GetAppByClientID(ctx, clientID)
	if repository.IsNotFound(err) {
		return nil, httperrors.ErrInvalidClient
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if !app.IsActive || app.Type != repository.AppTypeS2S || app.Secret == "" || !tokens.Equal(app.Secret, clientSecret) {
		log.Info("client authentication failed")
		metrics.AuthFailure(httperrors.ErrInvalidClient.Code)
		return nil, httperrors.ErrInvalidClient
	}
	if len(scopes) == 0 {
		return nil, httperrors.ErrInvalidScope
	}
	for _, sc := range scopes {
		if !app.HasScope(sc) {
			log.Info("scope not granted", logger.String("scope", sc))
			return nil, httperrors.ErrInvalidScope
		}
	}

	resp, err := s.access(ctx, jwtx.AccessClaims{
		Subject:  app.ClientID,
		ClientID: app.ClientID,
		Scope:    strings.Join(scopes, " "),
	})
	if err != nil {
		return nil, err
	}
	metrics.TokenIssued(dto.GrantClientCredentials)
	return resp, nil
}

func (s *tokenService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	claims, err := s.deps.Issuer.Verify(ctx, accessToken)
	if err != nil {
		return httperrors.ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	azp, _ := claims["azp"].(string)

	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		key := refreshKey(refreshToken)
		rb, err := s.refresh.Get(ctx, key)
		switch {
		case cache.IsNotFound(err):
		case err != nil:
			return httperrors.Internal(err)
		case rb.AuthID != sub || rb.ClientID != azp:
			return httperrors.ErrInvalidRefreshToken
		default:
			if err := s.refresh.Delete(ctx, key); err != nil {
				return httperrors.Internal(err)
			}
		}
	}
	if err := s.deps.Sessions.Clear(ctx, azp); err != nil {
		return httperrors.Internal(err)
	}
	audit.Log(ctx, audit.Logout, logger.AuthID(sub), logger.ClientID(azp))
	return nil
}
