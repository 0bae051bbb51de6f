// Package identity contiene los controllers de sign-in, sign-up, reset
// de password y páginas de policy.
package identity

import (
	"net/http"

	dto "github.com/dropDatabas3/melody/internal/http/dto/identity"
	"github.com/dropDatabas3/melody/internal/http/helpers"
	svc "github.com/dropDatabas3/melody/internal/http/services/identity"
)

type Controller struct {
	service svc.Service
}

func NewController(s svc.Service) *Controller {
	return &Controller{service: s}
}

// SignIn maneja POST /identity/v1/authorize-password.
func (c *Controller) SignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.PasswordSignInRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.SignInWithPassword(r.Context(), req.AuthorizeParams, req.Email, req.Password)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// SignUp maneja POST /identity/v1/authorize-account.
func (c *Controller) SignUp(w http.ResponseWriter, r *http.Request) {
	var req dto.SignUpRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.SignUp(r.Context(), req.AuthorizeParams, svc.SignUpInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, res)
}

// Google maneja POST /identity/v1/authorize-google.
func (c *Controller) Google(w http.ResponseWriter, r *http.Request) {
	var req dto.GoogleSignInRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.SignInWithGoogle(r.Context(), req.AuthorizeParams, req.Credential)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// ResetPasswordCode maneja POST /identity/v1/reset-password-code. Responde
// igual exista o no la cuenta.
func (c *Controller) ResetPasswordCode(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordCodeRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.service.SendResetPasswordCode(r.Context(), req.Email); err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.SuccessResponse{Success: true})
}

// ResetPassword maneja POST /identity/v1/reset-password.
func (c *Controller) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ResetPasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.service.ResetPassword(r.Context(), req.Email, req.Code, req.Password); err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.SuccessResponse{Success: true})
}
