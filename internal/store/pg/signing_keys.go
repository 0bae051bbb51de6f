package pg

import (
	"context"
	"crypto/rsa"
	"fmt"

	"github.com/dropDatabas3/melody/internal/jwt"
)

// KeySource lee las claves de firma de la tabla signing_keys. El servidor
// solo lee; el CLI rota y purga.
type KeySource struct{ s *Store }

var (
	_ jwt.KeySource = (*KeySource)(nil)
	_ jwt.Rotator   = (*KeySource)(nil)
)

func (s *Store) SigningKeys() *KeySource { return &KeySource{s: s} }

// LoadKeys: actual primero, luego deprecadas de la más nueva a la más vieja.
func (k *KeySource) LoadKeys(ctx context.Context) ([]*jwt.SigningKey, error) {
	const q = `
SELECT kid, private_key, status FROM signing_keys
ORDER BY (status = 'current') DESC, created_at DESC`
	rows, err := k.s.pool.Query(ctx, q)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []*jwt.SigningKey
	for rows.Next() {
		var kid, status string
		var pemBytes []byte
		if err := rows.Scan(&kid, &pemBytes, &status); err != nil {
			return nil, mapErr(err)
		}
		priv, err := jwt.ParsePrivatePEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("signing key %s: %w", kid, err)
		}
		sk, err := jwt.NewSigningKey(priv, jwt.KeyStatus(status))
		if err != nil {
			return nil, err
		}
		out = append(out, sk)
	}
	if err := rows.Err(); err != nil {
		return nil, mapErr(err)
	}
	if len(out) == 0 || out[0].Status != jwt.KeyCurrent {
		return nil, jwt.ErrNoSigningKey
	}
	return out, nil
}

// Rotate: pasa la actual a deprecada e inserta la nueva en una tx.
func (k *KeySource) Rotate(ctx context.Context, priv *rsa.PrivateKey) error {
	next, err := jwt.NewSigningKey(priv, jwt.KeyCurrent)
	if err != nil {
		return err
	}
	pemBytes, err := jwt.EncodePrivatePEM(priv)
	if err != nil {
		return err
	}

	tx, err := k.s.pool.Begin(ctx)
	if err != nil {
		return mapErr(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// primero la anterior, por el índice único de status='current'
	const demote = `UPDATE signing_keys SET status = 'deprecated', rotated_at = now() WHERE status = 'current'`
	if _, err := tx.Exec(ctx, demote); err != nil {
		return mapErr(err)
	}
	const insert = `INSERT INTO signing_keys (kid, private_key, status) VALUES ($1, $2, 'current')`
	if _, err := tx.Exec(ctx, insert, next.KID, pemBytes); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

func (k *KeySource) PurgeDeprecated(ctx context.Context) error {
	_, err := k.s.pool.Exec(ctx, `DELETE FROM signing_keys WHERE status = 'deprecated'`)
	return mapErr(err)
}

// Init inserta una clave actual si la tabla está vacía. Retorna true si
// generó una.
func (k *KeySource) Init(ctx context.Context, bits int) (bool, error) {
	var n int
	if err := k.s.pool.QueryRow(ctx, `SELECT count(*) FROM signing_keys WHERE status = 'current'`).Scan(&n); err != nil {
		return false, mapErr(err)
	}
	if n > 0 {
		return false, nil
	}
	priv, err := jwt.GenerateRSA(bits)
	if err != nil {
		return false, err
	}
	return true, k.Rotate(ctx, priv)
}
