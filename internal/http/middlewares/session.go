package middlewares

import (
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"

	"github.com/dropDatabas3/melody/internal/config"
	"github.com/dropDatabas3/melody/internal/http/services/flow"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	tokens "github.com/dropDatabas3/melody/internal/security/token"
)

// SessionCookie mantiene el id de sesión del navegador en una cookie
// firmada y cifrada. El id habilita el SSO entre apps (flow.Sessions).
type SessionCookie struct {
	sc     *securecookie.SecureCookie
	name   string
	ttl    time.Duration
	secure bool
}

// NewSessionCookie decodifica las claves en hex. Sin claves genera unas
// efímeras: las sesiones no sobreviven un reinicio.
func NewSessionCookie(cfg config.SessionConfig) (*SessionCookie, error) {
	hashKey, err := decodeKey(cfg.HashKey, 64)
	if err != nil {
		return nil, fmt.Errorf("session.hash_key: %w", err)
	}
	blockKey, err := decodeKey(cfg.BlockKey, 32)
	if err != nil {
		return nil, fmt.Errorf("session.block_key: %w", err)
	}
	sc := securecookie.New(hashKey, blockKey)
	sc.MaxAge(int(cfg.TTL.Seconds()))
	return &SessionCookie{sc: sc, name: cfg.CookieName, ttl: cfg.TTL, secure: cfg.Secure}, nil
}

func decodeKey(v string, size int) ([]byte, error) {
	if v == "" {
		return securecookie.GenerateRandomKey(size), nil
	}
	b, err := hex.DecodeString(v)
	if err != nil {
		return nil, err
	}
	switch len(b) {
	case 16, 24, 32, 64:
		return b, nil
	}
	return nil, fmt.Errorf("invalid key length %d", len(b))
}

// Handler lee la cookie; si falta o no valida emite una nueva. En ambos
// casos el id queda en el contexto vía flow.WithSessionID.
func (s *SessionCookie) Handler() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if c, err := r.Cookie(s.name); err == nil {
				var sid string
				if err := s.sc.Decode(s.name, c.Value, &sid); err == nil && sid != "" {
					next.ServeHTTP(w, r.WithContext(flow.WithSessionID(r.Context(), sid)))
					return
				}
			}

			sid, err := tokens.GenerateOpaqueToken(32)
			if err == nil {
				err = s.set(w, r, sid)
			}
			if err != nil {
				// sin cookie el flujo sigue, solo no hay SSO
				logger.From(r.Context()).Warn("session cookie", logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(flow.WithSessionID(r.Context(), sid)))
		})
	}
}

func (s *SessionCookie) set(w http.ResponseWriter, r *http.Request, sid string) error {
	encoded, err := s.sc.Encode(s.name, sid)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		Expires:  time.Now().Add(s.ttl),
		Secure:   s.secure || isHTTPS(r),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}
