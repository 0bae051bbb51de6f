// Package consent contiene DTOs de la pantalla de consentimiento.
package consent

// CodeRequest es el body común de los pasos que solo envían el code.
type CodeRequest struct {
	Code string `json:"code"`
}

// ScopeInfo describe un scope para mostrar.
type ScopeInfo struct {
	Name string `json:"name"`
	Note string `json:"note,omitempty"`
}

// InfoResponse es lo que muestra la página authorize-consent.
type InfoResponse struct {
	AppName string      `json:"appName"`
	Scopes  []ScopeInfo `json:"scopes"`
}
