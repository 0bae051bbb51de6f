package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dropDatabas3/melody/internal/cache"
)

// MultiLimiter permite límites distintos por ruta con el mismo algoritmo
// de ventana fija. Cada combinación limit+window usa su propio prefijo.
type MultiLimiter struct {
	c      cache.Client
	prefix string
	mu     sync.RWMutex
	// limiters por configuración
	limiters map[string]*FixedWindow
}

func NewMultiLimiter(c cache.Client, prefix string) *MultiLimiter {
	if prefix == "" {
		prefix = "rl"
	}
	return &MultiLimiter{
		c:        c,
		prefix:   prefix,
		limiters: make(map[string]*FixedWindow),
	}
}

func (m *MultiLimiter) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	configKey := fmt.Sprintf("%d:%s", limit, window.String())

	m.mu.RLock()
	limiter, exists := m.limiters[configKey]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		if limiter, exists = m.limiters[configKey]; !exists {
			limiter = NewFixedWindow(m.c, m.prefix+":"+configKey, limit, window)
			m.limiters[configKey] = limiter
		}
		m.mu.Unlock()
	}
	return limiter.Allow(ctx, key)
}

// Fixed adapta un límite fijo a la interfaz Limiter.
func (m *MultiLimiter) Fixed(limit int, window time.Duration) Limiter {
	return fixed{m: m, limit: limit, window: window}
}

type fixed struct {
	m      *MultiLimiter
	limit  int
	window time.Duration
}

func (f fixed) Allow(ctx context.Context, key string) (Result, error) {
	return f.m.AllowWithLimits(ctx, key, f.limit, f.window)
}
