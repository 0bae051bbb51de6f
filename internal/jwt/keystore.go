package jwt

import (
	"context"
	"sync"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/melody/internal/metrics"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

// Keystore cachea las claves de un KeySource. La recarga es perezosa
// (al leer después de ttl) y las recargas concurrentes se colapsan en una.
type Keystore struct {
	src KeySource
	ttl time.Duration

	mu    sync.RWMutex
	keys  []*SigningKey
	until time.Time

	sf  singleflight.Group
	now func() time.Time
}

// NewKeystore crea el keystore. ttl <= 0 recarga en cada lectura.
func NewKeystore(src KeySource, ttl time.Duration) *Keystore {
	return &Keystore{src: src, ttl: ttl, now: time.Now}
}

// Keys retorna la lista ordenada (actual primero).
func (k *Keystore) Keys(ctx context.Context) ([]*SigningKey, error) {
	k.mu.RLock()
	if len(k.keys) > 0 && k.now().Before(k.until) {
		keys := k.keys
		k.mu.RUnlock()
		return keys, nil
	}
	stale := k.keys
	k.mu.RUnlock()

	v, err, _ := k.sf.Do("load", func() (any, error) {
		keys, err := k.src.LoadKeys(ctx)
		if err != nil {
			return nil, err
		}
		if len(keys) == 0 {
			return nil, ErrNoSigningKey
		}
		k.mu.Lock()
		k.keys = keys
		k.until = k.now().Add(k.ttl)
		k.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		metrics.KeystoreReloadFailed()
		if len(stale) > 0 {
			logger.From(ctx).Warn("keystore reload failed, serving cached keys",
				logger.Component("jwt.keystore"), logger.Err(err))
			return stale, nil
		}
		return nil, err
	}
	return v.([]*SigningKey), nil
}

// Current retorna la clave de firma.
func (k *Keystore) Current(ctx context.Context) (*SigningKey, error) {
	keys, err := k.Keys(ctx)
	if err != nil {
		return nil, err
	}
	return keys[0], nil
}

// Invalidate fuerza recarga en la próxima lectura.
func (k *Keystore) Invalidate() {
	k.mu.Lock()
	k.until = time.Time{}
	k.mu.Unlock()
}

// JWKS publica todas las claves vigentes (actual + deprecadas).
func (k *Keystore) JWKS(ctx context.Context) (jose.JSONWebKeySet, error) {
	keys, err := k.Keys(ctx)
	if err != nil {
		return jose.JSONWebKeySet{}, err
	}
	set := jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, sk := range keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       sk.Public,
			KeyID:     sk.KID,
			Algorithm: AlgRS256,
			Use:       "sig",
		})
	}
	return set, nil
}
