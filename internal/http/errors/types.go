// Package errors define la taxonomía de errores del servidor y cómo se
// serializan. Los services retornan estos valores; cualquier otro error
// llega al cliente como internal_error.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// AppError es un error de request con código estable.
type AppError struct {
	Code       string `json:"error"`
	Message    string `json:"error_description"`
	Detail     string `json:"detail,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is compara por código, así errors.Is(err, ErrInvalidAuthCode) funciona
// aunque el valor sea una copia con detalle o causa.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// New crea un AppError.
func New(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status}
}

// Wrap crea un AppError con causa.
func Wrap(err error, status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// FromError convierte cualquier error a AppError. Lo que no es AppError
// es un fallo de backend: 500 sin detalle.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.WithCause(err)
}

// WithDetail retorna una copia con detalle.
func (e *AppError) WithDetail(detail string) *AppError {
	c := *e
	c.Detail = detail
	return &c
}

// WithCause retorna una copia con la causa (solo para logs).
func (e *AppError) WithCause(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

// Internal envuelve un fallo de store/transporte.
func Internal(err error) *AppError { return ErrInternal.WithCause(err) }

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

// ---- flujo de autorización ----
var (
	ErrInvalidAuthCode = New(http.StatusBadRequest, "invalid_auth_code",
		"El código de autorización es inválido, expiró o ya fue usado.")
	ErrInvalidAuthStep = New(http.StatusBadRequest, "invalid_auth_step",
		"El paso solicitado no corresponde al estado del flujo.")
	ErrInvalidCodeVerifier = New(http.StatusBadRequest, "invalid_code_verifier",
		"El code_verifier no coincide con el code_challenge.")
	ErrInvalidRefreshToken = New(http.StatusBadRequest, "invalid_refresh_token",
		"El refresh token es inválido o expiró.")
	ErrInvalidToken = New(http.StatusUnauthorized, "invalid_token",
		"El token es inválido o expiró.")
	ErrConsentRequired = New(http.StatusUnauthorized, "consent_required",
		"El usuario debe otorgar consentimiento a la aplicación.")
	ErrInvalidScope = New(http.StatusBadRequest, "invalid_scope",
		"Uno o más scopes no están permitidos para la aplicación.")
	ErrInvalidPolicy = New(http.StatusBadRequest, "invalid_policy",
		"La policy solicitada no existe o está bloqueada.")
	ErrInvalidRequest = New(http.StatusBadRequest, "invalid_request",
		"La solicitud es inválida o le faltan parámetros.")
	ErrInvalidClient = New(http.StatusUnauthorized, "invalid_client",
		"Autenticación del cliente fallida.")
	ErrUnsupportedGrantType = New(http.StatusBadRequest, "unsupported_grant_type",
		"El grant_type no está soportado.")
	ErrUnsupportedResponseType = New(http.StatusBadRequest, "unsupported_response_type",
		"El response_type no está soportado.")
	ErrInvalidRedirectURI = New(http.StatusBadRequest, "invalid_redirect_uri",
		"El redirect_uri no está registrado para la aplicación.")
)

// ---- identidad / credenciales ----
var (
	ErrNoUser = New(http.StatusUnauthorized, "no_user",
		"Credenciales inválidas.")
	ErrUserDisabled = New(http.StatusForbidden, "user_disabled",
		"La cuenta está deshabilitada.")
	ErrAccountLocked = New(http.StatusTooManyRequests, "account_locked",
		"La cuenta está bloqueada temporalmente por intentos fallidos.")
	ErrUserExists = New(http.StatusConflict, "user_exists",
		"Ya existe una cuenta con ese email.")
	ErrWeakPassword = New(http.StatusBadRequest, "weak_password",
		"La contraseña no cumple la política.")
	ErrFeatureDisabled = New(http.StatusNotFound, "feature_disabled",
		"La funcionalidad no está habilitada.")
	ErrInvalidSocialToken = New(http.StatusUnauthorized, "no_user",
		"No se pudo verificar la identidad social.")
)

// ---- MFA / passkey ----
var (
	ErrInvalidMfaCode = New(http.StatusUnauthorized, "invalid_mfa_code",
		"El código es inválido o expiró.")
	ErrInvalidMfaType = New(http.StatusBadRequest, "invalid_mfa_type",
		"El tipo de MFA no está permitido.")
	ErrOtpMfaLocked = New(http.StatusTooManyRequests, "otp_mfa_locked",
		"Demasiados intentos con el autenticador. Intenta más tarde.")
	ErrSmsMfaLocked = New(http.StatusTooManyRequests, "sms_mfa_locked",
		"Demasiados intentos con el código SMS. Intenta más tarde.")
	ErrEmailMfaLocked = New(http.StatusTooManyRequests, "email_mfa_locked",
		"Demasiados intentos con el código de email. Intenta más tarde.")
	ErrInvalidRecoveryCode = New(http.StatusUnauthorized, "invalid_recovery_code",
		"Credenciales inválidas.")
	ErrInvalidPasskey = New(http.StatusUnauthorized, "invalid_passkey",
		"No se pudo verificar la passkey.")
	ErrPasskeyChallengeExpired = New(http.StatusBadRequest, "invalid_passkey",
		"El desafío de la passkey expiró. Vuelve a intentar.")
	ErrInvalidPhoneNumber = New(http.StatusBadRequest, "invalid_phone_number",
		"El número de teléfono es inválido.")
)

// ---- SAML ----
var (
	ErrNoSamlIdp = New(http.StatusNotFound, "no_saml_idp",
		"El proveedor SAML no existe o está deshabilitado.")
	ErrInvalidSamlResponse = New(http.StatusBadRequest, "invalid_saml_response",
		"La respuesta SAML es inválida.")
	ErrWrongSessionID = New(http.StatusBadRequest, "wrong_session_id",
		"La sesión SAML no existe o expiró.")
)

// ---- genéricos ----
var (
	ErrMethodNotAllowed = New(http.StatusMethodNotAllowed, "method_not_allowed",
		"Método HTTP no permitido.")
	ErrNotFound = New(http.StatusNotFound, "not_found",
		"Recurso no encontrado.")
	ErrRateLimited = New(http.StatusTooManyRequests, "rate_limited",
		"Demasiadas solicitudes. Intenta más tarde.")
	ErrBodyTooLarge = New(http.StatusRequestEntityTooLarge, "body_too_large",
		"El cuerpo de la solicitud excede el tamaño máximo permitido.")
	ErrInternal = New(http.StatusInternalServerError, "internal_error",
		"Ocurrió un error inesperado.")
	ErrUnavailable = New(http.StatusServiceUnavailable, "service_unavailable",
		"Servicio no disponible.")
)
