// Package types contiene los payloads del flujo de autorización que viven
// en el almacén efímero (auth codes, refresh tokens, sesiones SSO).
package types

import (
	"strings"
	"time"

	"github.com/dropDatabas3/melody/internal/domain/repository"
)

// Scopes con semántica propia.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeOfflineAccess = "offline_access"
)

// AuthRequest es el request original del /authorize.
type AuthRequest struct {
	ClientID            string   `json:"clientId"`
	RedirectURI         string   `json:"redirectUri"`
	ResponseType        string   `json:"responseType"`
	State               string   `json:"state,omitempty"`
	Scopes              []string `json:"scopes"`
	CodeChallenge       string   `json:"codeChallenge,omitempty"`
	CodeChallengeMethod string   `json:"codeChallengeMethod,omitempty"`
	Nonce               string   `json:"nonce,omitempty"`
	Policy              Policy   `json:"policy"`
	Org                 string   `json:"org,omitempty"`
	Locale              string   `json:"locale,omitempty"`
}

// HasScope indica si el request incluye el scope.
func (r AuthRequest) HasScope(s string) bool {
	for _, v := range r.Scopes {
		if v == s {
			return true
		}
	}
	return false
}

// ScopeString une los scopes con espacio, como viajan en OAuth.
func (r AuthRequest) ScopeString() string { return strings.Join(r.Scopes, " ") }

// AuthCodeBody es el estado de un flujo bajo un auth code.
type AuthCodeBody struct {
	AppID   string          `json:"appId"`
	AppName string          `json:"appName"`
	User    repository.User `json:"user"`
	Request AuthRequest     `json:"request"`

	// IsFullyAuthorized: la identidad ya se probó con un factor fuerte
	// (social, SAML, passkey, recovery code, sesión SSO); se omite MFA.
	IsFullyAuthorized bool `json:"isFullyAuthorized"`

	// NextPage es el paso que el flujo espera; vacío con Authorized=true
	// significa listo para canjear.
	NextPage   NextPage `json:"nextPage,omitempty"`
	Authorized bool     `json:"authorized"`

	AuthTime  time.Time `json:"authTime"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// RefreshTokenBody se guarda bajo el valor opaco del refresh token.
type RefreshTokenBody struct {
	AuthID   string   `json:"authId"`
	ClientID string   `json:"clientId"`
	Scope    string   `json:"scope"`
	Roles    []string `json:"roles"`
}

// ServerSession es la última autorización completa de un navegador para
// un client; habilita SSO en el siguiente /authorize.
type ServerSession struct {
	AppID   string          `json:"appId"`
	User    repository.User `json:"user"`
	Request AuthRequest     `json:"request"`
}

// AuthorizeResult es lo que ven las páginas de identidad después de
// cada paso.
type AuthorizeResult struct {
	Code        string   `json:"code"`
	RedirectURI string   `json:"redirectUri"`
	State       string   `json:"state,omitempty"`
	Scopes      []string `json:"scopes"`
	NextPage    NextPage `json:"nextPage,omitempty"`
}
