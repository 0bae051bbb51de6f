// Package mfa contiene DTOs de los pasos MFA.
package mfa

import (
	"github.com/dropDatabas3/melody/internal/domain/types"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
)

type CodeRequest struct {
	Code string `json:"code"`
}

type EnrollRequest struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

type VerifyRequest struct {
	Code    string `json:"code"`
	MfaCode string `json:"mfaCode"`
}

type SmsSetupRequest struct {
	Code        string `json:"code"`
	PhoneNumber string `json:"phoneNumber"`
}

type EnrollOptionsResponse struct {
	Options []string `json:"options"`
}

type OtpSetupResponse struct {
	OtpSecret string `json:"otpSecret"`
	OtpURI    string `json:"otpUri"`
}

// CodeSentResponse indica a dónde se envió el código (enmascarado).
type CodeSentResponse struct {
	Destination string `json:"destination"`
}

// RecoverySignInRequest entra al flujo con el recovery code en lugar de
// password + MFA.
type RecoverySignInRequest struct {
	flow.AuthorizeParams
	Email        string `json:"email"`
	RecoveryCode string `json:"recoveryCode"`
}

type RecoveryCodeResponse struct {
	RecoveryCode string `json:"recoveryCode"`
}

// RecoverySignInResponse incluye el código nuevo: el usado ya no sirve.
type RecoverySignInResponse struct {
	types.AuthorizeResult
	RecoveryCode string `json:"recoveryCode"`
}
