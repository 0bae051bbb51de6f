// Package identity contiene DTOs de sign-in, sign-up y páginas de policy.
package identity

import "github.com/dropDatabas3/melody/internal/http/services/flow"

type PasswordSignInRequest struct {
	flow.AuthorizeParams
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpRequest struct {
	flow.AuthorizeParams
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// GoogleSignInRequest: Credential es el ID token que entrega Google
// Identity Services en el navegador.
type GoogleSignInRequest struct {
	flow.AuthorizeParams
	Credential string `json:"credential"`
}

type ResetPasswordCodeRequest struct {
	Email  string `json:"email"`
	Locale string `json:"locale"`
}

type ResetPasswordRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

type ChangePasswordRequest struct {
	Code        string `json:"code"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type ChangeEmailCodeRequest struct {
	Code  string `json:"code"`
	Email string `json:"email"`
}

type ChangeEmailRequest struct {
	Code       string `json:"code"`
	Email      string `json:"email"`
	VerifyCode string `json:"verificationCode"`
}

type CodeRequest struct {
	Code string `json:"code"`
}

// SuccessResponse se usa en endpoints sin payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}
