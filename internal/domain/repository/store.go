package repository

import "context"

// Store agrupa los repositorios que necesita el servidor.
type Store interface {
	AppRepository
	UserRepository
	ConsentRepository
	PasskeyRepository
	SamlIdpRepository
	ScopeRepository
	OrgRepository

	Ping(ctx context.Context) error
	Close()
}
