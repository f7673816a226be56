package api

import "net/http"

func (s *Server) handleGetBreaker(w http.ResponseWriter, r *http.Request) {
	scope, scopeID := r.PathValue("scope"), r.PathValue("scope_id")
	cb, err := s.store.GetBreaker(r.Context(), scope, scopeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if cb == nil {
		writeJSON(w, http.StatusOK, map[string]string{"scope": scope, "scope_id": scopeID, "state": "closed"})
		return
	}
	writeJSON(w, http.StatusOK, cb)
}

func (s *Server) handleManualOpen(w http.ResponseWriter, r *http.Request) {
	scope, scopeID := r.PathValue("scope"), r.PathValue("scope_id")
	if err := s.breakers.ManualOpen(r.Context(), scope, scopeID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleManualReset(w http.ResponseWriter, r *http.Request) {
	scope, scopeID := r.PathValue("scope"), r.PathValue("scope_id")
	if err := s.breakers.ManualReset(r.Context(), scope, scopeID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
