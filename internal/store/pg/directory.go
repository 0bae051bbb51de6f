package pg

import (
	"context"

	"github.com/google/uuid"

	"github.com/dropDatabas3/melody/internal/domain/repository"
)

// ─── SAML IdPs ───

func (s *Store) GetSamlIdpByName(ctx context.Context, name string) (*repository.SamlIdp, error) {
	const q = `
SELECT id, name, is_active, metadata, user_id_attribute, email_attribute, first_name_attribute, last_name_attribute
FROM saml_idps WHERE name = $1`
	var idp repository.SamlIdp
	err := s.pool.QueryRow(ctx, q, name).Scan(&idp.ID, &idp.Name, &idp.IsActive, &idp.Metadata,
		&idp.UserIDAttribute, &idp.EmailAttribute, &idp.FirstNameAttribute, &idp.LastNameAttribute)
	if err != nil {
		return nil, mapErr(err)
	}
	return &idp, nil
}

func (s *Store) UpsertSamlIdp(ctx context.Context, idp *repository.SamlIdp) error {
	if idp.ID == "" {
		idp.ID = uuid.NewString()
	}
	const q = `
INSERT INTO saml_idps (id, name, is_active, metadata, user_id_attribute, email_attribute, first_name_attribute, last_name_attribute)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (name) DO UPDATE SET
    is_active = EXCLUDED.is_active,
    metadata = EXCLUDED.metadata,
    user_id_attribute = EXCLUDED.user_id_attribute,
    email_attribute = EXCLUDED.email_attribute,
    first_name_attribute = EXCLUDED.first_name_attribute,
    last_name_attribute = EXCLUDED.last_name_attribute`
	_, err := s.pool.Exec(ctx, q, idp.ID, idp.Name, idp.IsActive, idp.Metadata,
		idp.UserIDAttribute, idp.EmailAttribute, idp.FirstNameAttribute, idp.LastNameAttribute)
	return mapErr(err)
}

// ─── Scopes ───

func (s *Store) ListScopesByNames(ctx context.Context, names []string) ([]repository.Scope, error) {
	rows, err := s.pool.Query(ctx, `SELECT name, type, note FROM scopes WHERE name = ANY($1) ORDER BY name`, names)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	out := make([]repository.Scope, 0, len(names))
	for rows.Next() {
		var sc repository.Scope
		var typ string
		if err := rows.Scan(&sc.Name, &typ, &sc.Note); err != nil {
			return nil, mapErr(err)
		}
		sc.Type = repository.AppType(typ)
		out = append(out, sc)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) UpsertScope(ctx context.Context, sc repository.Scope) error {
	const q = `
INSERT INTO scopes (name, type, note) VALUES ($1, $2, $3)
ON CONFLICT (name) DO UPDATE SET type = EXCLUDED.type, note = EXCLUDED.note`
	_, err := s.pool.Exec(ctx, q, sc.Name, string(sc.Type), sc.Note)
	return mapErr(err)
}

// ─── Orgs ───

func (s *Store) GetOrgBySlug(ctx context.Context, slug string) (*repository.Org, error) {
	var o repository.Org
	err := s.pool.QueryRow(ctx, `SELECT id, slug, name FROM orgs WHERE slug = $1`, slug).Scan(&o.ID, &o.Slug, &o.Name)
	if err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}
