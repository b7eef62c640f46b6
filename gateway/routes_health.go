package gateway

import (
	"encoding/json"
	"net/http"

	"relaygate.dev/app/version"
)

type healthReport struct {
	Status        string `json:"status"`
	SessionCount  int64  `json:"sessionCount"`
	Version       string `json:"version"`
	PublicBaseURL string `json:"publicBaseUrl,omitempty"`
}

// registerHealthRoutes wires GET /health, a plain liveness/gauge probe kept
// outside the huma-documented API surface (spec §6).
func (s *Server) registerHealthRoutes() {
	s.router.Get("/health", s.handleHealth)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := healthReport{
		Status:        "ok",
		SessionCount:  s.sessions.SessionGauge(),
		Version:       version.V,
		PublicBaseURL: s.cfg.PublicBaseURL,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
