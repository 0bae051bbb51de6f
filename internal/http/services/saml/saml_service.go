// Package saml es el puente SP: inicia el login contra un IdP SAML
// externo y convierte la aserción en un auth code del flujo.
package saml

import (
	"context"
	"encoding/xml"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	gosaml "github.com/crewjam/saml"
	"github.com/crewjam/saml/samlsp"
	"github.com/google/uuid"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/domain/repository"
	"github.com/dropDatabas3/melody/internal/domain/types"
	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

const (
	metadataPath = "/identity/v1/saml/sp/metadata"
	acsPath      = "/identity/v1/saml/sp/acs"
)

type Service interface {
	// Login retorna la URL del IdP (binding redirect).
	Login(ctx context.Context, p flow.AuthorizeParams) (string, error)
	// ACS procesa el SAMLResponse (binding POST) y retorna a dónde
	// redirigir el navegador.
	ACS(ctx context.Context, r *http.Request) (string, error)
	Metadata(ctx context.Context) ([]byte, error)
}

type Deps struct {
	Users     repository.UserRepository
	Apps      repository.AppRepository
	Idps      repository.SamlIdpRepository
	Cache     cache.Client
	Codes     *flow.Codes
	Resolver  *flow.Resolver
	Validator *flow.RequestValidator
	Keys      *KeyPair
	Config    config.SAMLConfig
	// Issuer es la URL pública del servidor; base de metadata y ACS.
	Issuer     string
	IdentityUI string
}

// pendingLogin es el estado entre Login y ACS, bajo samlSession:<uuid>.
type pendingLogin struct {
	IdpName   string            `json:"idpName"`
	RequestID string            `json:"requestId"`
	AppID     string            `json:"appId"`
	Request   types.AuthRequest `json:"request"`
}

type samlService struct {
	deps     Deps
	sessions cache.Namespace[pendingLogin]
	ttl      time.Duration
	metaURL  url.URL
	acsURL   url.URL
}

func NewService(d Deps) (Service, error) {
	base, err := url.Parse(strings.TrimRight(d.Issuer, "/"))
	if err != nil {
		return nil, err
	}
	ttl := d.Config.SessionTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &samlService{
		deps:     d,
		sessions: cache.NewNamespace[pendingLogin](d.Cache, "samlSession"),
		ttl:      ttl,
		metaURL:  *base.JoinPath(metadataPath),
		acsURL:   *base.JoinPath(acsPath),
	}, nil
}

func (s *samlService) serviceProvider(idp *repository.SamlIdp) (*gosaml.ServiceProvider, error) {
	sp := &gosaml.ServiceProvider{
		EntityID:          s.metaURL.String(),
		Key:               s.deps.Keys.Key,
		Certificate:       s.deps.Keys.Cert,
		MetadataURL:       s.metaURL,
		AcsURL:            s.acsURL,
		AuthnNameIDFormat: gosaml.UnspecifiedNameIDFormat,
	}
	if idp != nil {
		md, err := samlsp.ParseMetadata([]byte(idp.Metadata))
		if err != nil {
			return nil, err
		}
		sp.IDPMetadata = md
	}
	return sp, nil
}

func (s *samlService) loadIdp(ctx context.Context, name string) (*repository.SamlIdp, error) {
	idp, err := s.deps.Idps.GetSamlIdpByName(ctx, name)
	if repository.IsNotFound(err) {
		return nil, httperrors.ErrNoSamlIdp
	}
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	if !idp.IsActive {
		return nil, httperrors.ErrNoSamlIdp
	}
	return idp, nil
}

func (s *samlService) Login(ctx context.Context, p flow.AuthorizeParams) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("saml.login"))

	app, req, err := s.deps.Validator.Validate(ctx, p)
	if err != nil {
		return "", err
	}
	name, ok := req.Policy.SamlIdpName()
	if !ok {
		return "", httperrors.ErrNoSamlIdp
	}
	idp, err := s.loadIdp(ctx, name)
	if err != nil {
		return "", err
	}
	sp, err := s.serviceProvider(idp)
	if err != nil {
		log.Error("bad idp metadata", logger.IdpName(name), logger.Err(err))
		return "", httperrors.Internal(err)
	}
	authn, err := sp.MakeAuthenticationRequest(
		sp.GetSSOBindingLocation(gosaml.HTTPRedirectBinding),
		gosaml.HTTPRedirectBinding,
		gosaml.HTTPPostBinding,
	)
	if err != nil {
		return "", httperrors.Internal(err)
	}

	relay := uuid.NewString()
	pend := pendingLogin{IdpName: name, RequestID: authn.ID, AppID: app.ID, Request: req}
	if err := s.sessions.Put(ctx, relay, pend, s.ttl); err != nil {
		return "", httperrors.Internal(err)
	}
	dest, err := authn.Redirect(relay, sp)
	if err != nil {
		return "", httperrors.Internal(err)
	}
	log.Debug("saml login started", logger.IdpName(name), logger.ClientID(app.ClientID))
	return dest.String(), nil
}

func (s *samlService) ACS(ctx context.Context, r *http.Request) (string, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("saml.acs"))

	if err := r.ParseForm(); err != nil {
		return "", httperrors.ErrInvalidSamlResponse
	}
	relay := r.PostForm.Get("RelayState")
	if relay == "" {
		return "", httperrors.ErrWrongSessionID
	}
	pend, err := s.sessions.Take(ctx, relay)
	if cache.IsNotFound(err) {
		return "", httperrors.ErrWrongSessionID
	}
	if err != nil {
		return "", httperrors.Internal(err)
	}
	log = log.With(logger.IdpName(pend.IdpName))

	idp, err := s.loadIdp(ctx, pend.IdpName)
	if err != nil {
		return "", err
	}
	sp, err := s.serviceProvider(idp)
	if err != nil {
		return "", httperrors.Internal(err)
	}
	assertion, err := sp.ParseResponse(r, []string{pend.RequestID})
	if err != nil {
		var ire *gosaml.InvalidResponseError
		if errors.As(err, &ire) {
			log.Info("saml response rejected", logger.Err(ire.PrivateErr))
		} else {
			log.Info("saml response rejected", logger.Err(err))
		}
		return "", httperrors.ErrInvalidSamlResponse
	}

	user, err := s.provision(ctx, idp, assertion)
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		return "", httperrors.ErrUserDisabled
	}
	app, err := s.deps.Apps.GetAppByID(ctx, pend.AppID)
	if err != nil {
		return "", httperrors.Internal(err)
	}
	code, body, err := s.deps.Codes.Issue(ctx, app, user, pend.Request, true)
	if err != nil {
		return "", err
	}
	res, err := s.deps.Resolver.Resolve(ctx, flow.EntryAuthenticated, code, body)
	if err != nil {
		return "", err
	}
	log.Info("saml sign-in", logger.UserID(user.ID))
	return flow.RedirectURL(s.deps.IdentityUI, res), nil
}

func (s *samlService) Metadata(context.Context) ([]byte, error) {
	sp, err := s.serviceProvider(nil)
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	b, err := xml.MarshalIndent(sp.Metadata(), "", "  ")
	if err != nil {
		return nil, httperrors.Internal(err)
	}
	return append([]byte(xml.Header), b...), nil
}
