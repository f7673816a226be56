package api

import (
	"encoding/json"
	"net/http"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/internal/intake"
)

// handleWebhook is the Alertmanager webhook receiver. It only decodes,
// dedups, and hands evaluation off to the pipeline's EvaluateFunc — it
// never blocks on executor I/O.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload intake.WebhookPayload
	// Alertmanager sends fields intake does not read (version, groupKey,
	// receiver, ...), so unknown fields are accepted here.
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, apierror.Wrap(apierror.ValidationFailed, "invalid request body", err))
		return
	}

	ids, err := s.intake.Ingest(r.Context(), payload)
	if err != nil {
		writeError(w, apierror.Wrap(apierror.Internal, "ingest webhook payload", err))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"alert_ids": ids})
}
