package identity

import (
	"net/http"

	dto "github.com/dropDatabas3/melody/internal/http/dto/identity"
	"github.com/dropDatabas3/melody/internal/http/helpers"
)

// ChangePassword maneja POST /identity/v1/change-password.
func (c *Controller) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangePasswordRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.ChangePassword(r.Context(), req.Code, req.OldPassword, req.NewPassword)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// ChangeEmailCode maneja POST /identity/v1/change-email-code.
func (c *Controller) ChangeEmailCode(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangeEmailCodeRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	if err := c.service.SendChangeEmailCode(r.Context(), req.Code, req.Email); err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.SuccessResponse{Success: true})
}

// ChangeEmail maneja POST /identity/v1/change-email.
func (c *Controller) ChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.ChangeEmailRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.ChangeEmail(r.Context(), req.Code, req.Email, req.VerifyCode)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// ResetMfa maneja POST /identity/v1/reset-mfa.
func (c *Controller) ResetMfa(w http.ResponseWriter, r *http.Request) {
	var req dto.CodeRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.ResetMfa(r.Context(), req.Code)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}
