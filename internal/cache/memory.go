package cache

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache. go-cache es thread-safe
// por operación; el mutex serializa las operaciones compuestas.
type memoryClient struct {
	mu sync.Mutex
	c  *gocache.Cache
}

// NewMemory crea un cliente en memoria. defaultTTL solo aplica cuando se
// llama Set con ttl < 0.
func NewMemory(defaultTTL time.Duration) Client {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &memoryClient{c: gocache.New(defaultTTL, time.Minute)}
}

func expiration(ttl time.Duration) time.Duration {
	switch {
	case ttl == 0:
		return gocache.NoExpiration
	case ttl < 0:
		return gocache.DefaultExpiration
	default:
		return ttl
	}
}

func (m *memoryClient) get(key string) (string, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (m *memoryClient) Get(_ context.Context, key string) (string, error) {
	if s, ok := m.get(key); ok {
		return s, nil
	}
	return "", ErrNotFound
}

func (m *memoryClient) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	m.c.Set(key, value, expiration(ttl))
	m.mu.Unlock()
	return nil
}

func (m *memoryClient) Replace(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Replace(key, value, expiration(ttl)) == nil, nil
}

func (m *memoryClient) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	m.c.Delete(key)
	m.mu.Unlock()
	return nil
}

func (m *memoryClient) GetDel(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.get(key)
	if !ok {
		return "", ErrNotFound
	}
	m.c.Delete(key)
	return s, nil
}

func (m *memoryClient) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.get(key)
	if !ok || s != expected {
		return false, nil
	}
	m.c.Delete(key)
	return true, nil
}

func (m *memoryClient) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, exp, ok := m.c.GetWithExpiration(key)
	if !ok {
		m.c.Set(key, "1", expiration(ttl))
		return 1, nil
	}
	n, _ := strconv.ParseInt(v.(string), 10, 64)
	n++
	keep := gocache.NoExpiration
	if !exp.IsZero() {
		keep = time.Until(exp)
		if keep <= 0 {
			// expiró entre Get y ahora: reiniciar ventana
			m.c.Set(key, "1", expiration(ttl))
			return 1, nil
		}
	}
	m.c.Set(key, strconv.FormatInt(n, 10), keep)
	return n, nil
}

func (m *memoryClient) TTL(_ context.Context, key string) (time.Duration, error) {
	_, exp, ok := m.c.GetWithExpiration(key)
	if !ok {
		return 0, ErrNotFound
	}
	if exp.IsZero() {
		return 0, nil
	}
	return time.Until(exp), nil
}

func (m *memoryClient) List(_ context.Context, prefix string) ([]string, error) {
	out := []string{}
	for k, it := range m.c.Items() {
		if strings.HasPrefix(k, prefix) && !it.Expired() {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memoryClient) Ping(context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}
