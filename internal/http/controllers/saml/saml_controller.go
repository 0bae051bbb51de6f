// Package saml contiene los endpoints del SP SAML.
package saml

import (
	"net/http"

	oauthctrl "github.com/dropDatabas3/melody/internal/http/controllers/oauth"
	"github.com/dropDatabas3/melody/internal/http/helpers"
	svc "github.com/dropDatabas3/melody/internal/http/services/saml"
)

type Controller struct {
	service svc.Service
}

func NewController(s svc.Service) *Controller {
	return &Controller{service: s}
}

// Metadata maneja GET /identity/v1/saml/sp/metadata.
func (c *Controller) Metadata(w http.ResponseWriter, r *http.Request) {
	b, err := c.service.Metadata(r.Context())
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

// Login maneja GET /identity/v1/saml/sp/login con los parámetros del
// /authorize (policy saml_sso_{idp}).
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	dest, err := c.service.Login(r.Context(), oauthctrl.ParamsFromQuery(r.URL.Query()))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

// ACS maneja POST /identity/v1/saml/sp/acs (binding HTTP-POST).
func (c *Controller) ACS(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dest, err := c.service.ACS(r.Context(), r)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	http.Redirect(w, r, dest, http.StatusSeeOther)
}
