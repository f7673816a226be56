// Package api implements the public HTTP surface (C11): the Alertmanager
// webhook receiver plus CRUD and control endpoints for alerts, rules,
// runbooks, executions, circuit breakers, and blackout windows. Grounded on
// the teacher's checkin.Handler/RegisterRoutes shape — one handler struct
// per resource group, manual JSON validation, a shared writeJSON helper —
// rather than a web framework.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/internal/intake"
	"github.com/maftabmirza/remediation-engine-sub001/internal/llmclient"
	"github.com/maftabmirza/remediation-engine-sub001/internal/rules"
	"github.com/maftabmirza/remediation-engine-sub001/internal/safety"
	"github.com/maftabmirza/remediation-engine-sub001/internal/secretbox"
	"github.com/maftabmirza/remediation-engine-sub001/internal/store"
	"github.com/maftabmirza/remediation-engine-sub001/internal/trigger"
)

// Server holds every dependency the HTTP layer dispatches into. None of its
// handlers block on executor I/O: execute enqueues a pending execution for
// the worker pool, it never drives it inline.
type Server struct {
	store     *store.Store
	intake    *intake.Pipeline
	rules     *rules.Engine
	triggers  *trigger.Matcher
	breakers  *safety.BreakerManager
	approvals *safety.ApprovalGate
	secrets   *secretbox.Box
	analyzer  llmclient.Analyzer
	bearer    string
	log       *zap.Logger
}

// New builds a Server. bearerToken, when non-empty, is required on every
// route except the Alertmanager webhook. analyzer may be nil, in which case
// /api/alerts/{id}/analyze responds NotFound rather than panicking.
func New(st *store.Store, intakePipeline *intake.Pipeline, rulesEngine *rules.Engine, triggers *trigger.Matcher,
	breakers *safety.BreakerManager, approvals *safety.ApprovalGate, secrets *secretbox.Box, analyzer llmclient.Analyzer,
	bearerToken string, log *zap.Logger) *Server {
	return &Server{
		store: st, intake: intakePipeline, rules: rulesEngine, triggers: triggers,
		breakers: breakers, approvals: approvals, secrets: secrets, analyzer: analyzer, bearer: bearerToken, log: log,
	}
}

// Routes builds the ServeMux, grounded on the teacher's one-mux-per-process
// RegisterRoutes shape.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /webhook/alertmanager", s.handleWebhook)

	mux.HandleFunc("GET /api/alerts", s.authed(s.handleListAlerts))
	mux.HandleFunc("GET /api/alerts/{id}", s.authed(s.handleGetAlert))
	mux.HandleFunc("POST /api/alerts/{id}/analyze", s.authed(s.handleAnalyzeAlert))

	mux.HandleFunc("GET /api/rules", s.authed(s.handleListRules))
	mux.HandleFunc("POST /api/rules", s.authed(s.handleUpsertRule))
	mux.HandleFunc("GET /api/rules/{id}", s.authed(s.handleGetRule))
	mux.HandleFunc("DELETE /api/rules/{id}", s.authed(s.handleDeleteRule))

	mux.HandleFunc("GET /api/runbooks", s.authed(s.handleListRunbooks))
	mux.HandleFunc("POST /api/runbooks", s.authed(s.handleUpsertRunbook))
	mux.HandleFunc("GET /api/runbooks/{id}", s.authed(s.handleGetRunbook))
	mux.HandleFunc("POST /api/runbooks/{id}/steps", s.authed(s.handleUpsertStep))
	mux.HandleFunc("GET /api/runbooks/{id}/steps", s.authed(s.handleListSteps))
	mux.HandleFunc("POST /api/runbooks/{id}/triggers", s.authed(s.handleUpsertTrigger))
	mux.HandleFunc("GET /api/runbooks/{id}/triggers", s.authed(s.handleListTriggers))

	mux.HandleFunc("POST /api/credentials", s.authed(s.handleUpsertCredential))

	mux.HandleFunc("POST /api/executions", s.authed(s.handleCreateExecution))
	mux.HandleFunc("GET /api/executions/{id}", s.authed(s.handleGetExecution))
	mux.HandleFunc("GET /api/executions/{id}/steps", s.authed(s.handleListStepExecutions))
	mux.HandleFunc("POST /api/executions/{id}/approve", s.authed(s.handleApprove))
	mux.HandleFunc("POST /api/executions/{id}/cancel", s.authed(s.handleCancel))

	mux.HandleFunc("GET /api/breakers/{scope}/{scope_id}", s.authed(s.handleGetBreaker))
	mux.HandleFunc("POST /api/breakers/{scope}/{scope_id}/open", s.authed(s.handleManualOpen))
	mux.HandleFunc("POST /api/breakers/{scope}/{scope_id}/reset", s.authed(s.handleManualReset))

	mux.HandleFunc("GET /api/schedules/blackouts", s.authed(s.handleListBlackouts))
	mux.HandleFunc("POST /api/schedules/blackouts", s.authed(s.handleUpsertBlackout))

	mux.HandleFunc("GET /api/audit", s.authed(s.handleListAudit))

	return mux
}

// authed wraps h with bearer-token validation when s.bearer is configured.
func (s *Server) authed(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.bearer != "" {
			auth := r.Header.Get("Authorization")
			token := strings.TrimPrefix(auth, "Bearer ")
			if !strings.HasPrefix(auth, "Bearer ") || token != s.bearer {
				writeError(w, apierror.New(apierror.Unauthenticated, "invalid or missing bearer token"))
				return
			}
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := apierror.KindOf(err)
	writeJSON(w, apierror.Status(kind), map[string]any{
		"error": err.Error(),
		"kind":  kind,
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierror.Wrap(apierror.ValidationFailed, "invalid request body", err)
	}
	return nil
}
