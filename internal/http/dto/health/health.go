// Package health contiene DTOs de /readyz.
package health

import "time"

type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse: Status es ready o unavailable.
type HealthResponse struct {
	Status      string                  `json:"status"`
	Version     string                  `json:"version,omitempty"`
	ActiveKeyID string                  `json:"active_kid,omitempty"`
	Components  map[string]HealthStatus `json:"components"`
	Timestamp   time.Time               `json:"timestamp"`
}
