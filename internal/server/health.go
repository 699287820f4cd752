package server

import (
	"encoding/json"
	"net/http"
)

// HealthStatus represents the server health check response.
type HealthStatus struct {
	Status  string   `json:"status"`
	Bundles []string `json:"bundles"`
}

// handleHealth returns a health check response for load balancers and monitoring.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var bundles []string
	if v := s.source.RemoteVersions(); v != nil {
		for name := range v.All() {
			bundles = append(bundles, name)
		}
	}

	status := HealthStatus{
		Status:  "ok",
		Bundles: bundles,
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}
