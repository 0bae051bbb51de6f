// Package health contiene los controllers de health check.
package health

import (
	"net/http"

	"github.com/dropDatabas3/melody/internal/http/helpers"
	svc "github.com/dropDatabas3/melody/internal/http/services/health"
	"github.com/dropDatabas3/melody/internal/observability/logger"
)

type HealthController struct {
	service svc.HealthService
}

func NewHealthController(s svc.HealthService) *HealthController {
	return &HealthController{service: s}
}

// Healthz maneja GET /healthz: el proceso responde.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	helpers.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz maneja GET /readyz: store, cache y keystore operativos.
func (c *HealthController) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("HealthController.Readyz"))

	resp := c.service.Check(ctx)
	if resp.Version != "" {
		w.Header().Set("X-Service-Version", resp.Version)
	}
	if resp.ActiveKeyID != "" {
		w.Header().Set("X-JWKS-KID", resp.ActiveKeyID)
	}
	status := http.StatusOK
	if resp.Status == svc.StatusUnavailable {
		status = http.StatusServiceUnavailable
	}
	log.Debug("health check completed",
		logger.String("status", resp.Status),
		logger.Int("components_count", len(resp.Components)),
	)
	helpers.WriteJSON(w, status, resp)
}
