package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/melody/internal/domain/repository"
)

const appColumns = `id, client_id, secret, name, type, scopes, redirect_uris, is_active, created_at`

func scanApp(row pgx.Row) (*repository.App, error) {
	var a repository.App
	var typ string
	if err := row.Scan(&a.ID, &a.ClientID, &a.Secret, &a.Name, &typ, &a.Scopes, &a.RedirectURIs, &a.IsActive, &a.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	a.Type = repository.AppType(typ)
	return &a, nil
}

func (s *Store) GetAppByClientID(ctx context.Context, clientID string) (*repository.App, error) {
	return scanApp(s.pool.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE client_id = $1`, clientID))
}

func (s *Store) GetAppByID(ctx context.Context, id string) (*repository.App, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	return scanApp(s.pool.QueryRow(ctx, `SELECT `+appColumns+` FROM apps WHERE id = $1`, id))
}

// UpsertApp crea o reemplaza la app por client_id (CLI y tests).
func (s *Store) UpsertApp(ctx context.Context, a *repository.App) (*repository.App, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	const q = `
INSERT INTO apps (id, client_id, secret, name, type, scopes, redirect_uris, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (client_id) DO UPDATE SET
    secret = EXCLUDED.secret,
    name = EXCLUDED.name,
    type = EXCLUDED.type,
    scopes = EXCLUDED.scopes,
    redirect_uris = EXCLUDED.redirect_uris,
    is_active = EXCLUDED.is_active
RETURNING ` + appColumns
	return scanApp(s.pool.QueryRow(ctx, q,
		a.ID, a.ClientID, a.Secret, a.Name, string(a.Type), nonNil(a.Scopes), nonNil(a.RedirectURIs), a.IsActive))
}

// nonNil evita NULL en columnas TEXT[] NOT NULL.
func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
