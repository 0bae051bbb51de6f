// Package consent contiene el controller de la pantalla de consentimiento.
package consent

import (
	"net/http"

	dto "github.com/dropDatabas3/melody/internal/http/dto/consent"
	"github.com/dropDatabas3/melody/internal/http/helpers"
	svc "github.com/dropDatabas3/melody/internal/http/services/consent"
)

type Controller struct {
	service svc.Service
}

func NewController(s svc.Service) *Controller {
	return &Controller{service: s}
}

// Info maneja GET /identity/v1/authorize-consent?code=.
func (c *Controller) Info(w http.ResponseWriter, r *http.Request) {
	out, err := c.service.ConsentInfo(r.Context(), helpers.QueryCode(r))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Accept maneja POST /identity/v1/authorize-consent.
func (c *Controller) Accept(w http.ResponseWriter, r *http.Request) {
	var req dto.CodeRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.Accept(r.Context(), req.Code)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}
