package repository

import (
	"context"
	"slices"
	"time"
)

type AppType string

const (
	AppTypeSPA AppType = "spa"
	AppTypeS2S AppType = "s2s"
)

// App es un client OAuth.
type App struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"clientId"`
	Secret       string    `json:"-"`
	Name         string    `json:"name"`
	Type         AppType   `json:"type"`
	Scopes       []string  `json:"scopes"`
	RedirectURIs []string  `json:"redirectUris"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AllowsRedirect exige coincidencia exacta.
func (a *App) AllowsRedirect(uri string) bool {
	return uri != "" && slices.Contains(a.RedirectURIs, uri)
}

// HasScope indica si el scope fue otorgado a la app (S2S).
func (a *App) HasScope(s string) bool { return slices.Contains(a.Scopes, s) }

type AppRepository interface {
	GetAppByClientID(ctx context.Context, clientID string) (*App, error)
	GetAppByID(ctx context.Context, id string) (*App, error)
}
