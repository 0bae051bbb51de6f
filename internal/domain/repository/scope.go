package repository

import "context"

// Scope describe un scope para la pantalla de consentimiento.
type Scope struct {
	Name string  `json:"name"`
	Type AppType `json:"type"`
	Note string  `json:"note,omitempty"`
}

type ScopeRepository interface {
	// ListScopesByNames retorna los scopes conocidos; los desconocidos se omiten.
	ListScopesByNames(ctx context.Context, names []string) ([]Scope, error)
}

// Org habilita branding por organización; el core solo valida que exista.
type Org struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type OrgRepository interface {
	GetOrgBySlug(ctx context.Context, slug string) (*Org, error)
}
