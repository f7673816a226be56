package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rules)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.GetRule(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

// handleUpsertRule writes the rule then reloads the in-memory rules engine
// from the full rule set, so the next alert evaluation sees it immediately.
func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	var rule model.AutoAnalyzeRule
	if err := decodeJSON(r, &rule); err != nil {
		writeError(w, err)
		return
	}
	if rule.Name == "" {
		writeError(w, apierror.New(apierror.ValidationFailed, "name is required"))
		return
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}

	saved, err := s.store.UpsertRule(r.Context(), rule)
	if err != nil {
		writeError(w, err)
		return
	}

	s.reloadRules(r.Context())

	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteRule(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	s.reloadRules(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) reloadRules(ctx context.Context) {
	all, err := s.store.ListRules(ctx)
	if err != nil {
		s.log.Warn("rules reload after mutation failed", zap.Error(err))
		return
	}
	s.rules.LoadRules(all)
}
