package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func (s *Server) handleListRunbooks(w http.ResponseWriter, r *http.Request) {
	runbooks, err := s.store.ListEnabledRunbooks(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runbooks)
}

func (s *Server) handleGetRunbook(w http.ResponseWriter, r *http.Request) {
	runbook, err := s.store.GetRunbook(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runbook)
}

func (s *Server) handleUpsertRunbook(w http.ResponseWriter, r *http.Request) {
	var rb model.Runbook
	if err := decodeJSON(r, &rb); err != nil {
		writeError(w, err)
		return
	}
	if rb.Name == "" {
		writeError(w, apierror.New(apierror.ValidationFailed, "name is required"))
		return
	}
	if rb.ID == "" {
		rb.ID = uuid.NewString()
	}
	saved, err := s.store.UpsertRunbook(r.Context(), rb)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleUpsertStep(w http.ResponseWriter, r *http.Request) {
	runbookID := r.PathValue("id")
	var step model.RunbookStep
	if err := decodeJSON(r, &step); err != nil {
		writeError(w, err)
		return
	}
	step.RunbookID = runbookID
	if step.ID == "" {
		step.ID = uuid.NewString()
	}
	if err := s.store.UpsertStep(r.Context(), step); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, step)
}

func (s *Server) handleListSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := s.store.ListSteps(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

// handleUpsertTrigger writes the trigger then reloads the global trigger
// matcher so it takes effect on the next alert evaluation.
func (s *Server) handleUpsertTrigger(w http.ResponseWriter, r *http.Request) {
	runbookID := r.PathValue("id")
	var t model.RunbookTrigger
	if err := decodeJSON(r, &t); err != nil {
		writeError(w, err)
		return
	}
	t.RunbookID = runbookID
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if err := s.store.UpsertTrigger(r.Context(), t); err != nil {
		writeError(w, err)
		return
	}
	s.reloadTriggers(r.Context())
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleListTriggers(w http.ResponseWriter, r *http.Request) {
	triggers, err := s.store.ListTriggers(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triggers)
}

func (s *Server) reloadTriggers(ctx context.Context) {
	all, err := s.store.ListAllEnabledTriggers(ctx)
	if err != nil {
		s.log.Warn("trigger reload after mutation failed", zap.Error(err))
		return
	}
	s.triggers.LoadTriggers(all)
}

// credentialRequest carries a plaintext secret in over the wire; it is
// sealed with secretbox before ever reaching model.ServerCredential or the
// store, so the ciphertext is the only form that persists.
type credentialRequest struct {
	ID         string            `json:"id,omitempty"`
	ServerID   string            `json:"server_id"`
	Hostname   string            `json:"hostname"`
	Name       string            `json:"name,omitempty"`
	Port       int               `json:"port"`
	Username   string            `json:"username"`
	DriverType model.StepType    `json:"driver_type"`
	Secret     string            `json:"secret"`
	UseSSL     bool              `json:"use_ssl"`
	APIBaseURL string            `json:"api_base_url,omitempty"`
}

func (s *Server) handleUpsertCredential(w http.ResponseWriter, r *http.Request) {
	var req credentialRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ServerID == "" || req.Hostname == "" {
		writeError(w, apierror.New(apierror.ValidationFailed, "server_id and hostname are required"))
		return
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	var sealed []byte
	if req.Secret != "" {
		var err error
		sealed, err = s.secrets.Seal([]byte(req.Secret))
		if err != nil {
			writeError(w, apierror.Wrap(apierror.Internal, "seal credential secret", err))
			return
		}
	}

	cred := model.ServerCredential{
		ID: req.ID, ServerID: req.ServerID, Hostname: req.Hostname, Name: req.Name, Port: req.Port,
		Username: req.Username, DriverType: req.DriverType, SecretMaterialEncrypted: sealed,
		UseSSL: req.UseSSL, APIBaseURL: req.APIBaseURL,
	}
	if err := s.store.UpsertCredential(r.Context(), cred); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": cred.ID})
}
