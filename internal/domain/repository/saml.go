package repository

import "context"

// SamlIdp es un IdP externo; su nombre es el sufijo de la policy saml_sso_{name}.
type SamlIdp struct {
	ID       string
	Name     string
	IsActive bool
	// Metadata XML del IdP.
	Metadata string
	// Nombres de atributo en la aserción.
	UserIDAttribute    string
	EmailAttribute     string
	FirstNameAttribute string
	LastNameAttribute  string
}

type SamlIdpRepository interface {
	GetSamlIdpByName(ctx context.Context, name string) (*SamlIdp, error)
}
