package repository

import (
	"context"
	"time"
)

// Consent existe => el usuario ya aceptó compartir datos con la app.
type Consent struct {
	UserID    string
	AppID     string
	CreatedAt time.Time
}

type ConsentRepository interface {
	// HasConsent indica si existe el par (userID, appID).
	HasConsent(ctx context.Context, userID, appID string) (bool, error)
	// UpsertConsent es idempotente.
	UpsertConsent(ctx context.Context, userID, appID string) (*Consent, error)
	// DeleteConsent se usa al revocar (admin externo o tests).
	DeleteConsent(ctx context.Context, userID, appID string) error
}
