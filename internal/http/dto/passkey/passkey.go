// Package passkey contiene DTOs de WebAuthn.
package passkey

import (
	"encoding/json"
	"time"

	"github.com/dropDatabas3/melody/internal/http/services/flow"
)

type CodeRequest struct {
	Code string `json:"code"`
}

// FinishEnrollRequest: Credential es el PublicKeyCredential tal cual lo
// serializa el navegador.
type FinishEnrollRequest struct {
	Code       string          `json:"code"`
	Credential json.RawMessage `json:"credential"`
}

type DeclineRequest struct {
	Code     string `json:"code"`
	Remember bool   `json:"remember"`
}

type BeginVerifyRequest struct {
	Email string `json:"email"`
}

type FinishVerifyRequest struct {
	flow.AuthorizeParams
	Email      string          `json:"email"`
	Credential json.RawMessage `json:"credential"`
}

type RemoveRequest struct {
	Code string `json:"code"`
	ID   string `json:"id"`
}

// PasskeyInfo es lo que lista manage-passkey (sin material de clave).
type PasskeyInfo struct {
	ID         string     `json:"id"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}
