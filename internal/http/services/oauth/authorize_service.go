package oauth

import (
	"context"
	"net/url"

	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// AuthorizeService atiende GET /authorize. Retorna la URL a la que se
// redirige el navegador.
type AuthorizeService interface {
	Authorize(ctx context.Context, p flow.AuthorizeParams) (string, error)
}

type authorizeService struct {
	deps Deps
}

func NewAuthorizeService(d Deps) AuthorizeService {
	return &authorizeService{deps: d}
}

func (s *authorizeService) Authorize(ctx context.Context, p flow.AuthorizeParams) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("oauth.authorize"), logger.ClientID(p.ClientID))

	app, req, err := s.deps.Validator.Validate(ctx, p)
	if err != nil {
		return "", err
	}
	log = log.With(logger.Policy(string(req.Policy)))

	if req.Policy.IsSaml() {
		if s.deps.SAML == nil {
			return "", httperrors.ErrNoSamlIdp
		}
		return s.deps.SAML.Login(ctx, p)
	}

	// SSO: solo el flujo por defecto reutiliza la sesión; las policies
	// piden volver a autenticarse.
	if req.Policy == types.PolicySignInOrSignUp {
		dest, ok, err := s.reuseSession(ctx, app, req)
		if err != nil {
			return "", err
		}
		if ok {
			log.Debug("sso session reused")
			return dest, nil
		}
	}

	return s.deps.IdentityUI + "/authorize-password?" + encodeParams(p), nil
}

func (s *authorizeService) reuseSession(ctx context.Context, app *repository.App, req types.AuthRequest) (string, bool, error) {
	sess, err := s.deps.Sessions.Get(ctx, app.ClientID)
	if err != nil {
		// sin sesión se sigue con el login normal
		logger.From(ctx).Warn("load session failed", logger.Err(err))
		return "", false, nil
	}
	if sess == nil {
		return "", false, nil
	}
	if sess.AppID != app.ID {
		s.dropSession(ctx, app.ClientID)
		return "", false, nil
	}
	u, err := s.deps.Users.GetUserByID(ctx, sess.User.ID)
	if repository.IsNotFound(err) {
		s.dropSession(ctx, app.ClientID)
		return "", false, nil
	}
	if err != nil {
		return "", false, httperrors.Internal(err)
	}
	if !u.IsActive {
		s.dropSession(ctx, app.ClientID)
		return "", false, nil
	}
	code, body, err := s.deps.Codes.Issue(ctx, app, u, req, true)
	if err != nil {
		return "", false, err
	}
	res, err := s.deps.Resolver.Resolve(ctx, flow.EntryAuthenticated, code, body)
	if err != nil {
		return "", false, err
	}
	return flow.RedirectURL(s.deps.IdentityUI, res), true, nil
}

func encodeParams(p flow.AuthorizeParams) string {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("client_id", p.ClientID)
	set("redirect_uri", p.RedirectURI)
	set("response_type", p.ResponseType)
	set("state", p.State)
	set("scope", p.Scope)
	set("code_challenge", p.CodeChallenge)
	set("code_challenge_method", p.CodeChallengeMethod)
	set("nonce", p.Nonce)
	set("policy", p.Policy)
	set("org", p.Org)
	set("locale", p.Locale)
	return q.Encode()
}

// dropSession borra una sesión que ya no corresponde (otra app o usuario
// inexistente o deshabilitado).
func (s *authorizeService) dropSession(ctx context.Context, clientID string) {
	if err := s.deps.Sessions.Clear(ctx, clientID); err != nil {
		logger.From(ctx).Warn("clear stale session", logger.Err(err))
	}
}
