// Package orchestrator implements the Execution Orchestrator (C7): the
// state machine that drives one RunbookExecution from pending through its
// steps to a terminal status, clearing the safety gates just before it
// actually touches a host and rolling back best-effort on failure.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/internal/audit"
	"github.com/maftabmirza/remediation-engine-sub001/internal/executor"
	"github.com/maftabmirza/remediation-engine-sub001/internal/safety"
	"github.com/maftabmirza/remediation-engine-sub001/internal/secretbox"
	"github.com/maftabmirza/remediation-engine-sub001/internal/template"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// Store is the subset of store.Store the orchestrator needs.
type Store interface {
	GetExecution(ctx context.Context, id string) (model.RunbookExecution, error)
	SetExecutionStatus(ctx context.Context, id string, from, to model.ExecutionStatus) error
	SetExecutionError(ctx context.Context, id, errMsg string) error
	GetRunbook(ctx context.Context, id string) (model.Runbook, error)
	ListSteps(ctx context.Context, runbookID string) ([]model.RunbookStep, error)
	GetCredentialByServer(ctx context.Context, serverID string) (model.ServerCredential, error)
	GetAlert(ctx context.Context, id string) (model.Alert, error)
	CreateStepExecution(ctx context.Context, se model.StepExecution) (model.StepExecution, error)
	CompleteStepExecution(ctx context.Context, id string, status model.ExecutionStatus, output string, exitCode int) error
	MarkStepRolledBack(ctx context.Context, id string) error
	ListBlackoutWindows(ctx context.Context) ([]model.BlackoutWindow, error)
	CountRunningExecutions(ctx context.Context, runbookID string) (int, error)
	CountStartedExecutionsInWindow(ctx context.Context, runbookID, serverID string, since time.Time) (int, error)
}

// GlobalBreakerConfig tunes the single breaker shared by every runbook
// running against a server, independent of any one runbook's own breaker.
type GlobalBreakerConfig struct {
	FailureThreshold     int
	FailureWindowMinutes int
	OpenDurationMinutes  int
}

// Orchestrator wires the safety gates and the three executor drivers
// around one execution's step loop.
type Orchestrator struct {
	store    Store
	audit    *audit.Log
	breakers *safety.BreakerManager
	limiter  *safety.RateLimiter
	blackout *safety.BlackoutChecker
	secrets  *secretbox.Box
	drivers  map[model.StepType]executor.Driver
	global   GlobalBreakerConfig
	log      *zap.Logger
}

func New(store Store, auditLog *audit.Log, breakers *safety.BreakerManager, limiter *safety.RateLimiter,
	blackout *safety.BlackoutChecker, secrets *secretbox.Box, drivers map[model.StepType]executor.Driver,
	globalFailureThreshold, globalFailureWindowMinutes, globalOpenDurationMinutes int, log *zap.Logger) *Orchestrator {
	return &Orchestrator{
		store: store, audit: auditLog, breakers: breakers, limiter: limiter,
		blackout: blackout, secrets: secrets, drivers: drivers,
		global: GlobalBreakerConfig{
			FailureThreshold:     globalFailureThreshold,
			FailureWindowMinutes: globalFailureWindowMinutes,
			OpenDurationMinutes:  globalOpenDurationMinutes,
		},
		log: log,
	}
}

// Drive runs executionID's steps to completion. It is safe to call once per
// execution; the worker pool is responsible for not calling it twice
// concurrently for the same id.
func (o *Orchestrator) Drive(ctx context.Context, executionID string) error {
	exec, err := o.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != model.ExecutionPending {
		return nil // already running, terminal, or awaiting approval
	}

	runbook, err := o.store.GetRunbook(ctx, exec.RunbookID)
	if err != nil {
		return o.fail(ctx, exec, fmt.Sprintf("load runbook: %v", err))
	}

	if err := o.clearGates(ctx, exec, runbook); err != nil {
		o.audit.Emit("execution.gate_blocked", exec.TriggeredBy, "execution", exec.ID, map[string]any{"reason": err.Error()})
		return o.fail(ctx, exec, err.Error())
	}

	if err := o.store.SetExecutionStatus(ctx, exec.ID, model.ExecutionPending, model.ExecutionRunning); err != nil {
		return err
	}
	exec.Status = model.ExecutionRunning
	o.audit.Emit("execution.started", exec.TriggeredBy, "execution", exec.ID, nil)

	steps, err := o.store.ListSteps(ctx, runbook.ID)
	if err != nil {
		return o.fail(ctx, exec, fmt.Sprintf("load steps: %v", err))
	}

	cred, err := o.store.GetCredentialByServer(ctx, exec.ServerID)
	if err != nil {
		return o.fail(ctx, exec, fmt.Sprintf("load credential: %v", err))
	}

	var alertCtx map[string]any
	if exec.AlertID != "" {
		if alert, err := o.store.GetAlert(ctx, exec.AlertID); err == nil {
			alertCtx = map[string]any{
				"id": alert.ID, "name": alert.Name, "severity": alert.Severity,
				"status": string(alert.Status), "labels": map[string]any(stringMapToAny(alert.Labels)),
				"annotations": map[string]any(stringMapToAny(alert.Annotations)),
			}
		}
	}

	extracted := map[string]any{}
	tctx := template.Context{
		"execution": map[string]any{"id": exec.ID, "runbook_id": exec.RunbookID, "server_id": exec.ServerID},
		"vars":      map[string]any(exec.Vars),
		"now":       time.Now().Format(time.RFC3339),
		"alert":     alertCtx,
		"server": map[string]any{
			"id": cred.ServerID, "hostname": cred.Hostname, "name": cred.Name, "port": cred.Port,
		},
		"extracted": extracted,
	}

	var completed []model.RunbookStep
	failed := false
	var failureMsg string

	for _, step := range steps {
		se, serr := o.runStep(ctx, exec, runbook, cred, step, tctx)
		if serr != nil {
			failed = true
			failureMsg = serr.Error()
			_ = se
			if !step.ContinueOnFailure {
				break
			}
		}
		completed = append(completed, step)
	}

	if failed {
		o.rollback(ctx, exec, cred, completed, tctx)
		_ = o.store.SetExecutionError(ctx, exec.ID, failureMsg)
		if err := o.store.SetExecutionStatus(ctx, exec.ID, model.ExecutionRunning, model.ExecutionRolledBack); err != nil {
			return err
		}
		o.audit.Emit("execution.rolled_back", exec.TriggeredBy, "execution", exec.ID, map[string]any{"error": failureMsg})
		return nil
	}

	if err := o.store.SetExecutionStatus(ctx, exec.ID, model.ExecutionRunning, model.ExecutionSucceeded); err != nil {
		return err
	}
	o.audit.Emit("execution.succeeded", exec.TriggeredBy, "execution", exec.ID, nil)
	return nil
}

// clearGates runs the blackout, rate limiter, cooldown, and max-concurrency
// checks just-in-time — right before the execution is allowed to move to
// running — so a gate that trips between scheduling and dispatch still
// blocks it.
func (o *Orchestrator) clearGates(ctx context.Context, exec model.RunbookExecution, runbook model.Runbook) error {
	if !exec.BypassBlackout {
		windows, err := o.store.ListBlackoutWindows(ctx)
		if err != nil {
			return apierror.Wrap(apierror.Internal, "load blackout windows", err)
		}
		automatic := exec.Origin != model.TriggerOriginManual
		if err := o.blackout.Check(windows, runbook.ID, exec.ServerID, time.Now(), automatic); err != nil {
			return err
		}
	}

	if err := o.limiter.Allow(ctx, runbook.ID, exec.ServerID, runbook.RateLimitCount, runbook.RateLimitWindowSeconds); err != nil {
		return err
	}

	if !exec.BypassCooldown && runbook.CooldownMinutes > 0 {
		since := time.Now().Add(-time.Duration(runbook.CooldownMinutes) * time.Minute)
		count, err := o.store.CountStartedExecutionsInWindow(ctx, runbook.ID, exec.ServerID, since)
		if err != nil {
			return apierror.Wrap(apierror.Internal, "count started executions in window", err)
		}
		if count > 0 {
			return apierror.New(apierror.InCooldown, fmt.Sprintf("runbook %s is in cooldown on server %s", runbook.ID, exec.ServerID))
		}
	}

	running, err := o.store.CountRunningExecutions(ctx, runbook.ID)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "count running executions", err)
	}
	if runbook.MaxConcurrentExecutions > 0 && running >= runbook.MaxConcurrentExecutions {
		return apierror.New(apierror.RateLimited, fmt.Sprintf("runbook %s already has %d concurrent executions", runbook.ID, running))
	}

	return nil
}

func stringMapToAny(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (o *Orchestrator) fail(ctx context.Context, exec model.RunbookExecution, msg string) error {
	_ = o.store.SetExecutionError(ctx, exec.ID, msg)
	if err := o.store.SetExecutionStatus(ctx, exec.ID, exec.Status, model.ExecutionFailed); err != nil {
		o.log.Warn("failed to mark execution failed", zap.String("execution_id", exec.ID), zap.Error(err))
	}
	o.audit.Emit("execution.failed", exec.TriggeredBy, "execution", exec.ID, map[string]any{"error": msg})
	return nil
}
