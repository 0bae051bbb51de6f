package repository

import (
	"context"
	"time"
)

// PasskeyCredential es una credencial WebAuthn registrada.
type PasskeyCredential struct {
	ID              string
	UserID          string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	AAGUID          []byte
	Transports      []string
	// SignCounter solo crece: cada verificación exitosa lo reemplaza por
	// el contador de la aserción, que debe ser estrictamente mayor.
	SignCounter uint32
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

type PasskeyRepository interface {
	ListPasskeysByUser(ctx context.Context, userID string) ([]PasskeyCredential, error)
	CreatePasskey(ctx context.Context, c *PasskeyCredential) (*PasskeyCredential, error)
	// UpdatePasskeyCounter persiste el contador solo si newCounter > actual;
	// retorna false si otro request ya avanzó el contador.
	UpdatePasskeyCounter(ctx context.Context, id string, newCounter uint32) (bool, error)
	DeletePasskey(ctx context.Context, userID, id string) error
}
