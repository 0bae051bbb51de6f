package pg

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/melody/internal/domain/repository"
)

const passkeyColumns = `id, user_id, credential_id, public_key, attestation_type, aaguid, transports,
    sign_counter, created_at, last_used_at`

func scanPasskey(row pgx.Row) (*repository.PasskeyCredential, error) {
	var p repository.PasskeyCredential
	var counter int64
	err := row.Scan(&p.ID, &p.UserID, &p.CredentialID, &p.PublicKey, &p.AttestationType, &p.AAGUID,
		&p.Transports, &counter, &p.CreatedAt, &p.LastUsedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	p.SignCounter = uint32(counter)
	return &p, nil
}

func (s *Store) ListPasskeysByUser(ctx context.Context, userID string) ([]repository.PasskeyCredential, error) {
	q := `SELECT ` + passkeyColumns + ` FROM passkeys WHERE user_id = $1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.PasskeyCredential
	for rows.Next() {
		p, err := scanPasskey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, mapErr(rows.Err())
}

func (s *Store) CreatePasskey(ctx context.Context, c *repository.PasskeyCredential) (*repository.PasskeyCredential, error) {
	id := c.ID
	if id == "" {
		id = uuid.NewString()
	}
	q := `
INSERT INTO passkeys (id, user_id, credential_id, public_key, attestation_type, aaguid, transports, sign_counter)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING ` + passkeyColumns
	return scanPasskey(s.pool.QueryRow(ctx, q,
		id, c.UserID, c.CredentialID, c.PublicKey, c.AttestationType, c.AAGUID, nonNil(c.Transports), int64(c.SignCounter)))
}

// UpdatePasskeyCounter es un compare-and-set: solo avanza si el contador
// nuevo es mayor que el guardado.
func (s *Store) UpdatePasskeyCounter(ctx context.Context, id string, newCounter uint32) (bool, error) {
	const q = `UPDATE passkeys SET sign_counter = $2, last_used_at = now() WHERE id = $1 AND sign_counter < $2`
	tag, err := s.pool.Exec(ctx, q, id, int64(newCounter))
	if err != nil {
		return false, mapErr(err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM passkeys WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, mapErr(err)
	}
	if !exists {
		return false, repository.ErrNotFound
	}
	return false, nil
}

func (s *Store) DeletePasskey(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return repository.ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM passkeys WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
