package middlewares

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	httperrors "github.com/dropDatabas3/melody/internal/http/errors"
	"github.com/dropDatabas3/melody/internal/observability/logger"
	"github.com/dropDatabas3/melody/internal/rate"
)

// ClientIP retorna la IP del cliente. Con trustProxy usa el primer
// X-Forwarded-For; solo tiene sentido detrás de un proxy que lo pise.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
			if ip := strings.TrimSpace(strings.Split(xf, ",")[0]); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// RateKeyFunc define la clave de rate limiting de un request.
type RateKeyFunc func(r *http.Request) string

// IPPathRateKey limita por IP y ruta: cada endpoint de identidad tiene su
// propio cupo.
func IPPathRateKey(trustProxy bool) RateKeyFunc {
	return func(r *http.Request) string {
		return ClientIP(r, trustProxy) + "|" + r.URL.Path
	}
}

type RateLimitConfig struct {
	Limiter rate.Limiter
	KeyFunc RateKeyFunc
	// Whitelist son paths exactos que no se limitan.
	Whitelist []string
}

// WithRateLimit rechaza con 429 al superar el cupo. Si el limiter falla
// el request pasa: el almacén caído no debe tumbar el login.
func WithRateLimit(cfg RateLimitConfig) Middleware {
	if cfg.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPPathRateKey(false)
	}
	skip := make(map[string]struct{}, len(cfg.Whitelist))
	for _, p := range cfg.Whitelist {
		skip[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			res, err := cfg.Limiter.Allow(r.Context(), cfg.KeyFunc(r))
			if err != nil {
				logger.From(r.Context()).Warn("rate limiter error", logger.Op("rate_limit"), logger.Err(err))
				next.ServeHTTP(w, r)
				return
			}
			if res.WindowTTL > 0 {
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(res.WindowTTL).Unix(), 10))
			}
			if !res.Allowed {
				httperrors.WriteRetryAfter(w, httperrors.ErrRateLimited, res.RetryAfter)
				return
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
			next.ServeHTTP(w, r)
		})
	}
}
