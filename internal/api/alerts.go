package api

import (
	"net/http"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
)

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListFiringAlerts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, apierror.New(apierror.ValidationFailed, "id is required"))
		return
	}
	alert, err := s.store.GetAlert(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// handleAnalyzeAlert runs the configured LLM analyzer against one alert
// on demand — the same analysis an auto_analyze rule triggers, but for an
// operator looking at a specific alert rather than the evaluator's async
// sweep.
func (s *Server) handleAnalyzeAlert(w http.ResponseWriter, r *http.Request) {
	if s.analyzer == nil {
		writeError(w, apierror.New(apierror.NotFound, "no analyzer configured"))
		return
	}
	id := r.PathValue("id")
	if id == "" {
		writeError(w, apierror.New(apierror.ValidationFailed, "id is required"))
		return
	}
	alert, err := s.store.GetAlert(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	analysis, err := s.analyzer.Analyze(r.Context(), alert)
	if err != nil {
		writeError(w, apierror.Wrap(apierror.Internal, "analyze alert", err))
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
