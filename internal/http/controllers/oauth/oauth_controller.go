// Package oauth contiene los controllers OAuth2/OIDC.
package oauth

import (
	"net/http"
	"net/url"
	"strings"

	dto "github.com/dropDatabas3/melody/internal/http/dto/oauth"
	"github.com/dropDatabas3/melody/internal/http/helpers"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	svc "github.com/dropDatabas3/melody/internal/http/services/oauth"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// Controller atiende /oauth2/v1/* y los documentos .well-known.
type Controller struct {
	services svc.Services
}

func NewController(s svc.Services) *Controller {
	return &Controller{services: s}
}

// Authorize maneja GET /oauth2/v1/authorize. Siempre redirige; los
// errores de validación se devuelven como JSON porque el redirect_uri
// puede no ser confiable.
func (c *Controller) Authorize(w http.ResponseWriter, r *http.Request) {
	dest, err := c.services.Authorize.Authorize(r.Context(), ParamsFromQuery(r.URL.Query()))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// ParamsFromQuery lee los parámetros estándar del /authorize.
func ParamsFromQuery(q url.Values) flow.AuthorizeParams {
	return flow.AuthorizeParams{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		State:               q.Get("state"),
		Scope:               q.Get("scope"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Nonce:               q.Get("nonce"),
		Policy:              q.Get("policy"),
		Org:                 q.Get("org"),
		Locale:              q.Get("locale"),
	}
}

// Token maneja POST /oauth2/v1/token (form). Las credenciales del client
// pueden venir por Basic auth o en el body.
func (c *Controller) Token(w http.ResponseWriter, r *http.Request) {
	log := logger.From(r.Context()).With(logger.Layer("controller"), logger.Op("oauth.token"))

	if !helpers.ReadForm(w, r) {
		return
	}
	in := dto.TokenRequest{
		GrantType:    r.PostForm.Get("grant_type"),
		Code:         r.PostForm.Get("code"),
		CodeVerifier: r.PostForm.Get("code_verifier"),
		RedirectURI:  r.PostForm.Get("redirect_uri"),
		ClientID:     r.PostForm.Get("client_id"),
		ClientSecret: r.PostForm.Get("client_secret"),
		RefreshToken: r.PostForm.Get("refresh_token"),
		Scope:        r.PostForm.Get("scope"),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		// RFC 6749 2.3.1: las credenciales van form-urlencoded
		if v, err := url.QueryUnescape(id); err == nil {
			id = v
		}
		if v, err := url.QueryUnescape(secret); err == nil {
			secret = v
		}
		in.ClientID, in.ClientSecret = id, secret
	}

	resp, err := c.services.Token.Token(r.Context(), in)
	if err != nil {
		log.Debug("token rejected", logger.Grant(in.GrantType), logger.ClientID(in.ClientID), logger.Err(err))
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, resp)
}

// Logout maneja POST /oauth2/v1/logout con Bearer. El refresh token es
// opcional, en JSON o form.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	var req dto.LogoutRequest
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		if !helpers.ReadJSON(w, r, &req) {
			return
		}
	} else if r.ContentLength != 0 {
		if !helpers.ReadForm(w, r) {
			return
		}
		req.RefreshToken = r.PostForm.Get("refresh_token")
	}

	if err := c.services.Token.Logout(r.Context(), helpers.BearerToken(r), req.RefreshToken); err != nil {
		helpers.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UserInfo maneja GET|POST /oauth2/v1/userinfo.
func (c *Controller) UserInfo(w http.ResponseWriter, r *http.Request) {
	out, err := c.services.OIDC.UserInfo(r.Context(), helpers.BearerToken(r))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Discovery maneja GET /.well-known/openid-configuration.
func (c *Controller) Discovery(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, c.services.OIDC.Discovery(r.Context()))
}

// JWKS maneja GET /.well-known/jwks.json. Incluye las claves deprecadas
// para que los tokens emitidos antes de una rotación sigan validando.
func (c *Controller) JWKS(w http.ResponseWriter, r *http.Request) {
	set, err := c.services.OIDC.JWKS(r.Context())
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, set)
}
