// Package rate limita requests con ventana fija sobre el almacén efímero
// (INCR con TTL en el primer hit), así el límite se comparte entre réplicas.
package rate

import (
	"context"
	"strings"
	"time"

	"github.com/dropDatabas3/melody/internal/cache"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// FixedWindow: la ventana arranca en el primer hit de la clave.
type FixedWindow struct {
	counter cache.Counter
	Max     int64
	Window  time.Duration
}

func NewFixedWindow(c cache.Client, prefix string, max int, window time.Duration) *FixedWindow {
	if prefix == "" {
		prefix = "rl"
	}
	return &FixedWindow{
		counter: cache.NewCounter(c, prefix, window),
		Max:     int64(max),
		Window:  window,
	}
}

func (l *FixedWindow) Allow(ctx context.Context, key string) (Result, error) {
	key = strings.ReplaceAll(key, " ", "_")
	hits, err := l.counter.Incr(ctx, key)
	if err != nil {
		return Result{}, err
	}
	ttl, err := l.counter.Remaining(ctx, key)
	if err != nil || ttl <= 0 {
		ttl = l.Window
	}

	remaining := l.Max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     hits <= l.Max,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   ttl,
	}
	if !res.Allowed {
		// Retry after: resto de la ventana
		res.RetryAfter = ttl
	}
	return res, nil
}
