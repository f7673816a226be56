package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// adminRole is the only actor role permitted to bypass a runbook's cooldown
// or blackout gates on manual execution.
const adminRole = "admin"

// createExecutionRequest is the manual-trigger shape for POST
// /api/executions; alert_id and vars are optional. BypassCooldown and
// BypassBlackout are silently ignored unless ActorRole is adminRole.
type createExecutionRequest struct {
	RunbookID      string         `json:"runbook_id"`
	ServerID       string         `json:"server_id"`
	AlertID        string         `json:"alert_id,omitempty"`
	Vars           map[string]any `json:"vars,omitempty"`
	Actor          string         `json:"actor,omitempty"`
	ActorRole      string         `json:"actor_role,omitempty"`
	DryRun         bool           `json:"dry_run,omitempty"`
	BypassCooldown bool           `json:"bypass_cooldown,omitempty"`
	BypassBlackout bool           `json:"bypass_blackout,omitempty"`
}

// handleCreateExecution only enqueues: it writes a pending (or
// pending_approval, when the runbook requires it) execution row and
// returns immediately. The worker pool's dispatch loop is what actually
// drives it.
func (s *Server) handleCreateExecution(w http.ResponseWriter, r *http.Request) {
	var req createExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.RunbookID == "" || req.ServerID == "" {
		writeError(w, apierror.New(apierror.ValidationFailed, "runbook_id and server_id are required"))
		return
	}

	runbook, err := s.store.GetRunbook(r.Context(), req.RunbookID)
	if err != nil {
		writeError(w, err)
		return
	}

	status := model.ExecutionPending
	if runbook.RequiresApproval {
		status = model.ExecutionPendingApproval
	}

	bypassCooldown := req.BypassCooldown && req.ActorRole == adminRole
	bypassBlackout := req.BypassBlackout && req.ActorRole == adminRole

	exec, err := s.store.CreateExecution(r.Context(), model.RunbookExecution{
		ID:             uuid.NewString(),
		RunbookID:      req.RunbookID,
		ServerID:       req.ServerID,
		AlertID:        req.AlertID,
		Status:         status,
		Origin:         model.TriggerOriginManual,
		TriggeredBy:    req.Actor,
		Vars:           req.Vars,
		IsDryRun:       req.DryRun,
		BypassCooldown: bypassCooldown,
		BypassBlackout: bypassBlackout,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, exec)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.store.GetExecution(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) handleListStepExecutions(w http.ResponseWriter, r *http.Request) {
	steps, err := s.store.ListStepExecutions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, steps)
}

type approveRequest struct {
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req approveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Actor == "" {
		writeError(w, apierror.New(apierror.ValidationFailed, "actor is required"))
		return
	}
	if err := s.approvals.Approve(r.Context(), id, req.Actor, req.Role); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	exec, err := s.store.GetExecution(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.SetExecutionStatus(r.Context(), id, exec.Status, model.ExecutionCancelled); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
