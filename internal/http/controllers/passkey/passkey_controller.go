// Package passkey contiene los controllers de WebAuthn.
package passkey

import (
	"net/http"
	"strings"

	dto "github.com/dropDatabas3/melody/internal/http/dto/passkey"
	"github.com/dropDatabas3/melody/internal/http/helpers"
	svc "github.com/dropDatabas3/melody/internal/http/services/passkey"
)

type Controller struct {
	service svc.Service
}

func NewController(s svc.Service) *Controller {
	return &Controller{service: s}
}

// BeginEnroll maneja GET /identity/v1/authorize-passkey-enroll?code=.
func (c *Controller) BeginEnroll(w http.ResponseWriter, r *http.Request) {
	opts, err := c.service.BeginEnroll(r.Context(), helpers.QueryCode(r))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, opts)
}

// FinishEnroll maneja POST /identity/v1/authorize-passkey-enroll.
func (c *Controller) FinishEnroll(w http.ResponseWriter, r *http.Request) {
	var req dto.FinishEnrollRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.FinishEnroll(r.Context(), req.Code, req.Credential)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// Decline maneja POST /identity/v1/authorize-passkey-enroll-decline.
func (c *Controller) Decline(w http.ResponseWriter, r *http.Request) {
	var req dto.DeclineRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.DeclineEnroll(r.Context(), req.Code, req.Remember)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// BeginVerify maneja GET /identity/v1/authorize-passkey-verify?email=.
// 204 si el usuario no tiene passkeys: la UI sigue con password.
func (c *Controller) BeginVerify(w http.ResponseWriter, r *http.Request) {
	opts, err := c.service.BeginVerify(r.Context(), strings.TrimSpace(r.URL.Query().Get("email")))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	if opts == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, opts)
}

// FinishVerify maneja POST /identity/v1/authorize-passkey-verify.
func (c *Controller) FinishVerify(w http.ResponseWriter, r *http.Request) {
	var req dto.FinishVerifyRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.FinishVerify(r.Context(), req.AuthorizeParams, req.Email, req.Credential)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// List maneja GET /identity/v1/manage-passkey?code=.
func (c *Controller) List(w http.ResponseWriter, r *http.Request) {
	items, err := c.service.List(r.Context(), helpers.QueryCode(r))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, map[string]any{"passkeys": items})
}

// Remove maneja DELETE /identity/v1/manage-passkey.
func (c *Controller) Remove(w http.ResponseWriter, r *http.Request) {
	var req dto.RemoveRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.service.Remove(r.Context(), req.Code, req.ID); err != nil {
		helpers.Fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FinishManage maneja POST /identity/v1/manage-passkey: cierra la policy.
func (c *Controller) FinishManage(w http.ResponseWriter, r *http.Request) {
	var req dto.CodeRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.FinishManage(r.Context(), req.Code)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}
