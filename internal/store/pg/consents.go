package pg

import (
	"context"

	"github.com/dropDatabas3/melody/internal/domain/repository"
)

func (s *Store) HasConsent(ctx context.Context, userID, appID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM user_app_consents WHERE user_id = $1 AND app_id = $2)`
	var ok bool
	if err := s.pool.QueryRow(ctx, q, userID, appID).Scan(&ok); err != nil {
		return false, mapErr(err)
	}
	return ok, nil
}

// UpsertConsent: dos requests concurrentes insertan la misma fila; el
// segundo no hace nada y relee la existente.
func (s *Store) UpsertConsent(ctx context.Context, userID, appID string) (*repository.Consent, error) {
	const q = `
WITH ins AS (
    INSERT INTO user_app_consents (user_id, app_id) VALUES ($1, $2)
    ON CONFLICT (user_id, app_id) DO NOTHING
    RETURNING user_id, app_id, created_at
)
SELECT user_id, app_id, created_at FROM ins
UNION ALL
SELECT user_id, app_id, created_at FROM user_app_consents WHERE user_id = $1 AND app_id = $2
LIMIT 1`
	var c repository.Consent
	if err := s.pool.QueryRow(ctx, q, userID, appID).Scan(&c.UserID, &c.AppID, &c.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (s *Store) DeleteConsent(ctx context.Context, userID, appID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM user_app_consents WHERE user_id = $1 AND app_id = $2`, userID, appID)
	return mapErr(err)
}
