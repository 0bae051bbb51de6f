// Package mfa contiene los controllers de los pasos MFA del flujo.
package mfa

import (
	"net/http"

	dto "github.com/dropDatabas3/melody/internal/http/dto/mfa"
	"github.com/dropDatabas3/melody/internal/http/helpers"
	svc "github.com/dropDatabas3/melody/internal/http/services/mfa"
)

type Controller struct {
	service svc.Service
}

func NewController(s svc.Service) *Controller {
	return &Controller{service: s}
}

// EnrollOptions maneja GET /identity/v1/authorize-mfa-enroll?code=.
func (c *Controller) EnrollOptions(w http.ResponseWriter, r *http.Request) {
	out, err := c.service.EnrollOptions(r.Context(), helpers.QueryCode(r))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Enroll maneja POST /identity/v1/authorize-mfa-enroll.
func (c *Controller) Enroll(w http.ResponseWriter, r *http.Request) {
	var req dto.EnrollRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.Enroll(r.Context(), req.Code, req.Type)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// OtpSetup maneja GET /identity/v1/authorize-otp-setup?code=. La
// respuesta contiene el secreto; la ruta va con no-store.
func (c *Controller) OtpSetup(w http.ResponseWriter, r *http.Request) {
	out, err := c.service.OtpSetup(r.Context(), helpers.QueryCode(r))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// VerifyOtp maneja POST /identity/v1/authorize-otp-mfa.
func (c *Controller) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.VerifyOtp(r.Context(), req.Code, req.MfaCode)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// SetupSms maneja POST /identity/v1/authorize-sms-mfa-setup.
func (c *Controller) SetupSms(w http.ResponseWriter, r *http.Request) {
	var req dto.SmsSetupRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	out, err := c.service.SetupSms(r.Context(), req.Code, req.PhoneNumber)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// SendSmsCode maneja POST /identity/v1/authorize-sms-mfa-code.
func (c *Controller) SendSmsCode(w http.ResponseWriter, r *http.Request) {
	var req dto.CodeRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	out, err := c.service.SendSmsCode(r.Context(), req.Code)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// VerifySms maneja POST /identity/v1/authorize-sms-mfa.
func (c *Controller) VerifySms(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.VerifySms(r.Context(), req.Code, req.MfaCode)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// SendEmailCode maneja POST /identity/v1/authorize-email-mfa-code.
func (c *Controller) SendEmailCode(w http.ResponseWriter, r *http.Request) {
	var req dto.CodeRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	out, err := c.service.SendEmailCode(r.Context(), req.Code)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// VerifyEmail maneja POST /identity/v1/authorize-email-mfa.
func (c *Controller) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req dto.VerifyRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	res, err := c.service.VerifyEmail(r.Context(), req.Code, req.MfaCode)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, res)
}

// RecoveryCodeEnroll maneja GET /identity/v1/authorize-recovery-code-enroll?code=.
func (c *Controller) RecoveryCodeEnroll(w http.ResponseWriter, r *http.Request) {
	out, err := c.service.RecoveryCodeEnroll(r.Context(), helpers.QueryCode(r))
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// RecoverySignIn maneja POST /identity/v1/authorize-recovery-code.
func (c *Controller) RecoverySignIn(w http.ResponseWriter, r *http.Request) {
	var req dto.RecoverySignInRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	out, err := c.service.SignInWithRecoveryCode(r.Context(), req.AuthorizeParams, req.Email, req.RecoveryCode)
	if err != nil {
		helpers.Fail(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}
