package httpapi

import (
	"net/http"
	"time"

	"github.com/orbicheck/orbicheck/pkg/telemetry"
)

// handleHealth implements GET /v1/health: a dependency-checking liveness
// snapshot, not just a bare 200. Builds one telemetry.ComponentStatus per
// collaborator that can actually fail independently of the process itself.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	comps := []telemetry.ComponentStatus{s.checkDatabase(r, now), s.checkCache(r, now)}

	snap, err := telemetry.NewHealthSnapshot(s.serviceName(), s.Env, "", comps, now)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "failed to build health snapshot")
		return
	}

	status := http.StatusOK
	if snap.Overall == telemetry.StatusDegraded {
		status = http.StatusOK
	} else if snap.Overall == telemetry.StatusFatal {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, snap)
}

func (s *Server) serviceName() string {
	if s.ServiceName != "" {
		return s.ServiceName
	}
	return "orbicheck"
}

func (s *Server) checkDatabase(r *http.Request, now time.Time) telemetry.ComponentStatus {
	if s.DB == nil {
		return telemetry.ComponentStatus{Name: "database", Status: telemetry.StatusUnknown, CheckedAt: now, Message: "not configured"}
	}
	if err := s.DB.Ping(r.Context()); err != nil {
		return telemetry.ComponentStatus{Name: "database", Status: telemetry.StatusFatal, CheckedAt: now, Message: err.Error()}
	}
	return telemetry.ComponentStatus{Name: "database", Status: telemetry.StatusOK, CheckedAt: now}
}

func (s *Server) checkCache(r *http.Request, now time.Time) telemetry.ComponentStatus {
	if s.Cache == nil {
		return telemetry.ComponentStatus{Name: "cache", Status: telemetry.StatusUnknown, CheckedAt: now, Message: "not configured"}
	}
	const probeKey = "__health_probe__"
	if err := s.Cache.Set(r.Context(), "__health__", probeKey, []byte("1"), time.Second); err != nil {
		return telemetry.ComponentStatus{Name: "cache", Status: telemetry.StatusDegraded, CheckedAt: now, Message: err.Error()}
	}
	return telemetry.ComponentStatus{Name: "cache", Status: telemetry.StatusOK, CheckedAt: now}
}
