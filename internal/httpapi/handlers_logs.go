package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// handleLogsList implements GET /v1/data/logs: opaque-cursor pagination
// over the tenant's event log (§4.13).
func (s *Server) handleLogsList(w http.ResponseWriter, r *http.Request) {
	actx, _ := authContext(r)
	if s.EventLog == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "event log unavailable")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}
	page, err := s.EventLog.List(actx.ProjectID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_request", "invalid pagination cursor")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"entries":     page.Entries,
		"next_cursor": page.NextCursor,
	})
}

// handleLogsGet implements GET /v1/data/logs/:id.
func (s *Server) handleLogsGet(w http.ResponseWriter, r *http.Request) {
	actx, _ := authContext(r)
	id := mux.Vars(r)["id"]
	if s.EventLog == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "event log unavailable")
		return
	}
	entry, ok := s.EventLog.Get(actx.ProjectID, id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "not_found", "log entry not found")
		return
	}
	writeJSON(w, r, http.StatusOK, entry)
}

// handleLogsDelete implements DELETE /v1/data/logs/:id. The event log is
// append-only (§4.13); a per-entry delete would break the hash chain, so
// this endpoint always responds 405 immutable_log. Entries leave the log
// only through the retention sweep.
func (s *Server) handleLogsDelete(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, "immutable_log", "event log entries cannot be deleted individually; they age out via retention sweep")
}

// handleDataUsage implements GET/DELETE /v1/data/usage: a per-tenant
// summary of retained event-log volume.
func (s *Server) handleDataUsage(w http.ResponseWriter, r *http.Request) {
	actx, _ := authContext(r)
	if s.EventLog == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "event log unavailable")
		return
	}
	page, err := s.EventLog.List(actx.ProjectID, "", 1000)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "could not read usage")
		return
	}
	total := len(page.Entries)
	for page.NextCursor != "" {
		next, err := s.EventLog.List(actx.ProjectID, page.NextCursor, 1000)
		if err != nil {
			break
		}
		total += len(next.Entries)
		page = next
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"event_count": total})
}

func (s *Server) handleDataUsageDelete(w http.ResponseWriter, r *http.Request) {
	actx, _ := authContext(r)
	if s.EventLog == nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "event log unavailable")
		return
	}
	deleted, err := s.EventLog.Sweep(s.now())
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal_error", "sweep failed")
		return
	}
	_ = actx
	writeJSON(w, r, http.StatusOK, map[string]any{"deleted": deleted})
}
