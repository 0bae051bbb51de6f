package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/melody/internal/cache"
	"github.com/dropDatabas3/melody/internal/domain/types"
	tokens "github.com/dropDatabas3/melody/internal/security/token"
)

type sidKey struct{}

// WithSessionID guarda el id de sesión del navegador (cookie) en ctx.
func WithSessionID(ctx context.Context, sid string) context.Context {
	return context.WithValue(ctx, sidKey{}, sid)
}

// SessionIDFrom retorna "" si el request no trae sesión.
func SessionIDFrom(ctx context.Context) string {
	sid, _ := ctx.Value(sidKey{}).(string)
	return sid
}

// Sessions guarda ServerSession bajo "session:<sha256(sid)>:<clientId>".
// El sid nunca se persiste en claro.
type Sessions struct {
	ns  cache.Namespace[types.ServerSession]
	ttl time.Duration
}

func NewSessions(c cache.Client, ttl time.Duration) *Sessions {
	return &Sessions{ns: cache.NewNamespace[types.ServerSession](c, "session"), ttl: ttl}
}

func sessionKey(sid, clientID string) string {
	return tokens.SHA256Base64URL(sid) + ":" + clientID
}

// Save persiste la autorización completa para SSO. Sin sid no hace nada.
func (s *Sessions) Save(ctx context.Context, clientID string, sess types.ServerSession) error {
	sid := SessionIDFrom(ctx)
	if sid == "" {
		return nil
	}
	if err := s.ns.Put(ctx, sessionKey(sid, clientID), sess, s.ttl); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Get retorna (nil, nil) si no hay sesión.
func (s *Sessions) Get(ctx context.Context, clientID string) (*types.ServerSession, error) {
	sid := SessionIDFrom(ctx)
	if sid == "" {
		return nil, nil
	}
	sess, err := s.ns.Get(ctx, sessionKey(sid, clientID))
	if cache.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &sess, nil
}

// Clear borra la sesión de un client.
func (s *Sessions) Clear(ctx context.Context, clientID string) error {
	sid := SessionIDFrom(ctx)
	if sid == "" {
		return nil
	}
	return s.ns.Delete(ctx, sessionKey(sid, clientID))
}

// ClearAll borra las sesiones del navegador para todos los clients.
func (s *Sessions) ClearAll(ctx context.Context) error {
	sid := SessionIDFrom(ctx)
	if sid == "" {
		return nil
	}
	ids, err := s.ns.IDs(ctx, tokens.SHA256Base64URL(sid)+":")
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	for _, id := range ids {
		if err := s.ns.Delete(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
