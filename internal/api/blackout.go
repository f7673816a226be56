package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func (s *Server) handleListBlackouts(w http.ResponseWriter, r *http.Request) {
	windows, err := s.store.ListBlackoutWindows(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, windows)
}

func (s *Server) handleUpsertBlackout(w http.ResponseWriter, r *http.Request) {
	var win model.BlackoutWindow
	if err := decodeJSON(r, &win); err != nil {
		writeError(w, err)
		return
	}
	if win.Name == "" {
		writeError(w, apierror.New(apierror.ValidationFailed, "name is required"))
		return
	}
	if win.ID == "" {
		win.ID = uuid.NewString()
	}
	if win.Timezone == "" {
		win.Timezone = "UTC"
	}
	if err := s.store.UpsertBlackoutWindow(r.Context(), win); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, win)
}

func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	entityType := r.URL.Query().Get("entity_type")
	entityID := r.URL.Query().Get("entity_id")
	if entityType == "" || entityID == "" {
		writeError(w, apierror.New(apierror.ValidationFailed, "entity_type and entity_id query params are required"))
		return
	}
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := s.store.ListAuditEvents(r.Context(), entityType, entityID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
