package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Namespace es un accessor tipado para un prefijo de keys. Cada tipo de
// payload (auth code, refresh token, sesión, challenge) tiene el suyo, así
// nunca se deserializa un payload con el struct equivocado.
type Namespace[T any] struct {
	c      Client
	prefix string
}

// NewNamespace crea un accessor para keys "<prefix>:<id>".
func NewNamespace[T any](c Client, prefix string) Namespace[T] {
	return Namespace[T]{c: c, prefix: strings.TrimSuffix(prefix, ":") + ":"}
}

// Key retorna la key completa para id.
func (n Namespace[T]) Key(id string) string { return n.prefix + id }

func (n Namespace[T]) Put(ctx context.Context, id string, v T, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", n.prefix, err)
	}
	return n.c.Set(ctx, n.Key(id), string(b), ttl)
}

// Replace re-escribe v solo si id sigue existiendo.
func (n Namespace[T]) Replace(ctx context.Context, id string, v T, ttl time.Duration) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("cache: encode %s: %w", n.prefix, err)
	}
	return n.c.Replace(ctx, n.Key(id), string(b), ttl)
}

func (n Namespace[T]) decode(raw string) (T, error) {
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return v, fmt.Errorf("cache: decode %s: %w", n.prefix, err)
	}
	return v, nil
}

// Get retorna ErrNotFound si la key no existe.
func (n Namespace[T]) Get(ctx context.Context, id string) (T, error) {
	raw, err := n.c.Get(ctx, n.Key(id))
	if err != nil {
		var zero T
		return zero, err
	}
	return n.decode(raw)
}

// Take lee y consume el valor (GetDel atómico).
func (n Namespace[T]) Take(ctx context.Context, id string) (T, error) {
	raw, err := n.c.GetDel(ctx, n.Key(id))
	if err != nil {
		var zero T
		return zero, err
	}
	return n.decode(raw)
}

func (n Namespace[T]) Delete(ctx context.Context, id string) error {
	return n.c.Delete(ctx, n.Key(id))
}

// TTL restante de la entrada.
func (n Namespace[T]) TTL(ctx context.Context, id string) (time.Duration, error) {
	return n.c.TTL(ctx, n.Key(id))
}

// IDs lista los ids vivos del namespace que empiezan con sub.
func (n Namespace[T]) IDs(ctx context.Context, sub string) ([]string, error) {
	keys, err := n.c.List(ctx, n.prefix+sub)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

// Counter es un contador con ventana (lockout, fallos MFA, rate limit).
type Counter struct {
	c      Client
	prefix string
	ttl    time.Duration
}

// NewCounter crea un contador "<prefix>:<id>" cuya ventana arranca en el
// primer incremento.
func NewCounter(c Client, prefix string, window time.Duration) Counter {
	return Counter{c: c, prefix: strings.TrimSuffix(prefix, ":") + ":", ttl: window}
}

// Incr suma uno y retorna el valor nuevo.
func (k Counter) Incr(ctx context.Context, id string) (int64, error) {
	return k.c.Incr(ctx, k.prefix+id, k.ttl)
}

// Value retorna el valor actual (0 si no existe).
func (k Counter) Value(ctx context.Context, id string) (int64, error) {
	raw, err := k.c.Get(ctx, k.prefix+id)
	if IsNotFound(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var n int64
	if _, err := fmt.Sscan(raw, &n); err != nil {
		return 0, fmt.Errorf("cache: counter %s%s: %w", k.prefix, id, err)
	}
	return n, nil
}

// Reset borra el contador.
func (k Counter) Reset(ctx context.Context, id string) error {
	return k.c.Delete(ctx, k.prefix+id)
}

// Window retorna la ventana configurada.
func (k Counter) Window() time.Duration { return k.ttl }

// Remaining retorna cuánto falta para que la ventana expire.
func (k Counter) Remaining(ctx context.Context, id string) (time.Duration, error) {
	d, err := k.c.TTL(ctx, k.prefix+id)
	if IsNotFound(err) {
		return 0, nil
	}
	return d, err
}
