// Package metrics define los collectors Prometheus del servidor. Vive
// aparte para que services y middlewares registren sin ciclos de import.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once    sync.Once
	initErr error

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec

	tokensIssuedTotal  *prometheus.CounterVec
	authFailuresTotal  *prometheus.CounterVec
	flowStepsTotal     *prometheus.CounterVec
	lockoutsTotal      *prometheus.CounterVec
	keystoreReloadsErr prometheus.Counter
)

// Config agrupa lo necesario para exponer /metrics.
type Config struct {
	Registry prometheus.Registerer
	// Pool habilita gauges del pool de Postgres.
	Pool func() *pgxpool.Pool
}

// Register inicializa los collectors (una vez) y retorna el handler de /metrics.
func Register(cfg Config) (http.Handler, error) {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	once.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})
		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})
		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método y ruta",
		}, []string{"method", "path"})

		tokensIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melody_tokens_issued_total",
			Help: "Tokens emitidos por grant",
		}, []string{"grant_type"})
		authFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melody_auth_failures_total",
			Help: "Fallos de autenticación por tipo de error",
		}, []string{"kind"})
		flowStepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melody_flow_steps_total",
			Help: "Pasos devueltos por el resolver (authorized = flujo completo)",
		}, []string{"next_page"})
		lockoutsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "melody_lockouts_total",
			Help: "Bloqueos por contador",
		}, []string{"counter"})
		keystoreReloadsErr = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "melody_keystore_reload_errors_total",
			Help: "Recargas del keystore que fallaron",
		})

		for _, c := range []prometheus.Collector{
			httpRequestsTotal, httpRequestDuration, httpInflight,
			tokensIssuedTotal, authFailuresTotal, flowStepsTotal, lockoutsTotal, keystoreReloadsErr,
		} {
			if err := registerCollector(reg, c); err != nil {
				initErr = err
				return
			}
		}
	})
	if initErr != nil {
		return nil, initErr
	}
	if cfg.Pool != nil {
		if err := registerCollector(reg, newPoolCollector(cfg.Pool)); err != nil {
			return nil, err
		}
	}
	if g, ok := reg.(prometheus.Gatherer); ok && reg != prometheus.DefaultRegisterer {
		return promhttp.HandlerFor(g, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

func registerCollector(reg prometheus.Registerer, c prometheus.Collector) error {
	if err := reg.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// ---- dominio (no-op si Register no se llamó) ----

func TokenIssued(grant string) {
	if tokensIssuedTotal != nil {
		tokensIssuedTotal.WithLabelValues(grant).Inc()
	}
}

func AuthFailure(kind string) {
	if authFailuresTotal != nil {
		authFailuresTotal.WithLabelValues(kind).Inc()
	}
}

func FlowStep(nextPage string) {
	if flowStepsTotal == nil {
		return
	}
	if nextPage == "" {
		nextPage = "authorized"
	}
	flowStepsTotal.WithLabelValues(nextPage).Inc()
}

func Lockout(counter string) {
	if lockoutsTotal != nil {
		lockoutsTotal.WithLabelValues(counter).Inc()
	}
}

func KeystoreReloadFailed() {
	if keystoreReloadsErr != nil {
		keystoreReloadsErr.Inc()
	}
}

// ---- HTTP ----

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// WithMetrics instrumenta requests HTTP (contadores, latencia, inflight).
func WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if httpRequestsTotal == nil {
			next.ServeHTTP(w, r)
			return
		}
		method := strings.ToUpper(r.Method)
		path := normalizePath(r.URL.Path)

		httpInflight.WithLabelValues(method, path).Inc()
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		defer func() {
			httpInflight.WithLabelValues(method, path).Dec()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
		}()
		next.ServeHTTP(rec, r)
	})
}

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// normalizePath colapsa segmentos dinámicos para acotar la cardinalidad.
func normalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		switch {
		case seg == "":
			continue
		case uuidSegmentRE.MatchString(seg), tokenSegmentRE.MatchString(seg):
			out = append(out, ":param")
		default:
			if _, err := strconv.Atoi(seg); err == nil {
				out = append(out, ":param")
			} else {
				out = append(out, seg)
			}
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

// ---- pgxpool ----

type poolCollector struct {
	pool     func() *pgxpool.Pool
	acquired *prometheus.Desc
	idle     *prometheus.Desc
	total    *prometheus.Desc
}

func newPoolCollector(pool func() *pgxpool.Pool) *poolCollector {
	return &poolCollector{
		pool:     pool,
		acquired: prometheus.NewDesc("pg_pool_acquired", "Conexiones adquiridas", nil, nil),
		idle:     prometheus.NewDesc("pg_pool_idle", "Conexiones inactivas", nil, nil),
		total:    prometheus.NewDesc("pg_pool_total", "Conexiones totales", nil, nil),
	}
}

func (c *poolCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.acquired
	ch <- c.idle
	ch <- c.total
}

func (c *poolCollector) Collect(ch chan<- prometheus.Metric) {
	p := c.pool()
	if p == nil {
		return
	}
	st := p.Stat()
	ch <- prometheus.MustNewConstMetric(c.acquired, prometheus.GaugeValue, float64(st.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.idle, prometheus.GaugeValue, float64(st.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.total, prometheus.GaugeValue, float64(st.TotalConns()))
}
