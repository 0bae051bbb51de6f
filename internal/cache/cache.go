// Package cache es el almacén efímero con TTL: auth codes, refresh tokens,
// sesiones SSO, códigos MFA, contadores de fallos y challenges.
//
// Dos backends: memory (go-cache, un solo proceso) y redis. Las operaciones
// de consumo (GetDel, CompareAndDelete) y los contadores (Incr) son atómicos
// en ambos.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client define las operaciones del almacén.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) (string, error)

	// Set guarda un valor. ttl 0 => sin expiración.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Replace re-escribe la key solo si todavía existe. false => no existía.
	Replace(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	Delete(ctx context.Context, key string) error

	// GetDel lee y borra en una sola operación atómica. Dos llamadas
	// concurrentes sobre la misma key nunca obtienen ambas el valor.
	GetDel(ctx context.Context, key string) (string, error)

	// CompareAndDelete borra la key solo si su valor es expected.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)

	// Incr incrementa el contador; en el primer hit fija el TTL.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// TTL retorna el tiempo restante; ErrNotFound si no existe.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// List retorna las keys (sin prefijo de backend) que empiezan con prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrNotFound indica key inexistente o expirada.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound verifica si el error es porque la key no existe.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Config configuración para crear un cliente.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

// New crea un cliente según Driver.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(ctx, cfg)
	case "memory", "":
		return NewMemory(cfg.DefaultTTL), nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}
