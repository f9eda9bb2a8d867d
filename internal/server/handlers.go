package server

import (
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/nregatrack/nrega-sync/internal/model"
)

// maxListLimit caps the limit query parameter of /sync/runs.
const maxListLimit = 500

type healthResponse struct {
	Status    string         `json:"status"`
	LatestRun *model.SyncRun `json:"latest_run,omitempty"`
}

// health reports ok unless the sync log is unreachable or the latest run failed.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	run, err := s.opts.Runs.LatestSyncRun(r.Context())
	if err != nil {
		s.log.Warn("health: latest sync run", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
		return
	}

	resp := healthResponse{Status: "ok", LatestRun: run}
	if run != nil && run.Status == model.SyncFailed {
		resp.Status = "degraded"
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxListLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500", nil)
			return
		}
		limit = n
	}

	runs, err := s.opts.Runs.ListSyncRuns(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list sync runs", err)
		return
	}
	if runs == nil {
		runs = []model.SyncRun{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) latestRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.opts.Runs.LatestSyncRun(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load latest sync run", err)
		return
	}
	if run == nil {
		s.writeError(w, http.StatusNotFound, "no sync runs recorded", nil)
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) trigger(w http.ResponseWriter, _ *http.Request) {
	if !s.opts.Trigger.TriggerSync() {
		s.writeError(w, http.StatusConflict, "sync already running", nil)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

// writeError logs the internal error and returns a sanitized JSON error to the client.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string, err error) {
	if err != nil {
		s.log.Error(msg, zap.Error(err), zap.Int("status", status))
	}
	s.writeJSON(w, status, map[string]string{"error": msg})
}
