package api

import (
	"context"
	"net/http"
	"sort"
	"time"
)

const readyTimeout = 2 * time.Second

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handleReady pings the store and every configured check.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := make(map[string]Pinger, len(s.deps.Checks)+1)
	for name, p := range s.deps.Checks {
		checks[name] = p
	}
	if s.deps.Store != nil {
		checks["database"] = s.deps.Store
	}

	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
	status := http.StatusOK
	for _, name := range names {
		if err := checks[name].Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Str("check", name).Msg("Readiness check failed")
			resp.Checks[name] = "fail"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}
