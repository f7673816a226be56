// Package worker implements the worker pool and scheduler (C9): a fixed
// concurrency pool that drains pending executions, a minute-tick scheduler
// for cron-origin triggers, an approval-timeout sweep, and blackout-window
// edge-transition audit events.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maftabmirza/remediation-engine-sub001/internal/audit"
	"github.com/maftabmirza/remediation-engine-sub001/internal/safety"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// Orchestrator is the subset orchestrator.Orchestrator the pool drives.
type Orchestrator interface {
	Drive(ctx context.Context, executionID string) error
}

// Store is the subset of store.Store the worker pool needs.
type Store interface {
	ListPendingExecutions(ctx context.Context, limit int) ([]model.RunbookExecution, error)
	CreateExecution(ctx context.Context, e model.RunbookExecution) (model.RunbookExecution, error)
	ListAllTriggersByOrigin(ctx context.Context, origin model.TriggerOrigin) ([]model.RunbookTrigger, error)
	GetRunbook(ctx context.Context, id string) (model.Runbook, error)
	ListBlackoutWindows(ctx context.Context) ([]model.BlackoutWindow, error)
}

// Config tunes the pool's concurrency and polling cadence.
type Config struct {
	Concurrency        int
	PollInterval       time.Duration
	SchedulerInterval  time.Duration
	ApprovalTimeout    time.Duration
	DispatchBatchSize  int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:       8,
		PollInterval:      2 * time.Second,
		SchedulerInterval: time.Minute,
		ApprovalTimeout:   30 * time.Minute,
		DispatchBatchSize: 32,
	}
}

// Pool drains pending executions with bounded concurrency and runs the
// scheduler's periodic housekeeping ticks alongside it, mirroring the
// teacher daemon's single main-loop-plus-goroutines shape.
type Pool struct {
	cfg          Config
	store        Store
	orchestrator Orchestrator
	approvals    *safety.ApprovalGate
	blackout     *safety.BlackoutChecker
	auditLog     *audit.Log
	log          *zap.Logger

	mu          sync.Mutex
	inFlight    map[string]bool
	lastTick    map[string]time.Time // triggerID -> last minute it fired
	windowState map[string]bool      // blackout window id -> was active
}

func New(cfg Config, store Store, orch Orchestrator, approvals *safety.ApprovalGate, blackout *safety.BlackoutChecker, auditLog *audit.Log, log *zap.Logger) *Pool {
	return &Pool{
		cfg: cfg, store: store, orchestrator: orch, approvals: approvals, blackout: blackout, auditLog: auditLog, log: log,
		inFlight:    make(map[string]bool),
		lastTick:    make(map[string]time.Time),
		windowState: make(map[string]bool),
	}
}

// Run blocks until ctx is cancelled, dispatching pending executions and
// running scheduler housekeeping on their own tickers.
func (p *Pool) Run(ctx context.Context) error {
	dispatchTicker := time.NewTicker(p.cfg.PollInterval)
	defer dispatchTicker.Stop()
	schedulerTicker := time.NewTicker(p.cfg.SchedulerInterval)
	defer schedulerTicker.Stop()

	p.log.Info("worker pool started", zap.Int("concurrency", p.cfg.Concurrency), zap.Duration("poll_interval", p.cfg.PollInterval))

	for {
		select {
		case <-ctx.Done():
			p.log.Info("worker pool shutting down")
			return nil
		case <-dispatchTicker.C:
			if err := p.dispatchPending(ctx); err != nil {
				p.log.Warn("dispatch tick failed", zap.Error(err))
			}
		case <-schedulerTicker.C:
			p.runSchedulerTick(ctx)
		}
	}
}

// dispatchPending pulls a batch of pending executions and drives each
// concurrently, bounded by Config.Concurrency via errgroup.SetLimit.
func (p *Pool) dispatchPending(ctx context.Context) error {
	execs, err := p.store.ListPendingExecutions(ctx, p.cfg.DispatchBatchSize)
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)

	for _, e := range execs {
		if p.claim(e.ID) {
			execID := e.ID
			g.Go(func() error {
				defer p.release(execID)
				if err := p.orchestrator.Drive(ctx, execID); err != nil {
					p.log.Error("execution drive failed", zap.String("execution_id", execID), zap.Error(err))
				}
				return nil
			})
		}
	}
	return g.Wait()
}

// claim prevents the same execution id from being driven by two concurrent
// dispatch ticks.
func (p *Pool) claim(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inFlight[id] {
		return false
	}
	p.inFlight[id] = true
	return true
}

func (p *Pool) release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inFlight, id)
}

// runSchedulerTick fires due cron triggers, sweeps stale approvals, and
// emits blackout-window edge-transition audit events. Best-effort: a
// failure in one concern is logged and does not block the others.
func (p *Pool) runSchedulerTick(ctx context.Context) {
	now := time.Now()

	if err := p.fireDueCronTriggers(ctx, now); err != nil {
		p.log.Warn("cron trigger sweep failed", zap.Error(err))
	}

	if expired, err := p.approvals.SweepTimeouts(ctx, p.cfg.ApprovalTimeout); err != nil {
		p.log.Warn("approval timeout sweep failed", zap.Error(err))
	} else if expired > 0 {
		p.log.Info("expired stale approvals", zap.Int("count", expired))
	}

	p.reportBlackoutTransitions(ctx, now)
}

func (p *Pool) fireDueCronTriggers(ctx context.Context, now time.Time) error {
	triggers, err := p.store.ListAllTriggersByOrigin(ctx, model.TriggerOriginSchedule)
	if err != nil {
		return err
	}

	truncated := now.Truncate(time.Minute)
	for _, t := range triggers {
		if t.CronExpression == "" {
			continue
		}
		if p.alreadyFiredThisMinute(t.ID, truncated) {
			continue
		}
		schedule, err := parseCron(t.CronExpression)
		if err != nil {
			p.log.Warn("invalid cron expression", zap.String("trigger_id", t.ID), zap.String("expr", t.CronExpression), zap.Error(err))
			continue
		}
		if !schedule.matches(truncated) {
			continue
		}

		p.markFiredThisMinute(t.ID, truncated)
		if _, err := p.store.CreateExecution(ctx, model.RunbookExecution{
			ID:        uuid.NewString(),
			RunbookID: t.RunbookID,
			ServerID:  t.TargetServerID,
			Status:    model.ExecutionPending,
			Origin:    model.TriggerOriginSchedule,
		}); err != nil {
			p.log.Warn("failed to create scheduled execution", zap.String("trigger_id", t.ID), zap.Error(err))
		} else {
			p.auditLog.Emit("execution.scheduled", "scheduler", "runbook_trigger", t.ID, map[string]any{"runbook_id": t.RunbookID})
		}
	}
	return nil
}

func (p *Pool) alreadyFiredThisMinute(triggerID string, minute time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	last, ok := p.lastTick[triggerID]
	return ok && last.Equal(minute)
}

func (p *Pool) markFiredThisMinute(triggerID string, minute time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastTick[triggerID] = minute
}

func (p *Pool) reportBlackoutTransitions(ctx context.Context, now time.Time) {
	windows, err := p.store.ListBlackoutWindows(ctx)
	if err != nil {
		p.log.Warn("failed to list blackout windows", zap.Error(err))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, w := range windows {
		active, err := p.blackout.IsActive(w, now)
		if err != nil {
			continue
		}
		was := p.windowState[w.ID]
		if active == was {
			continue
		}
		p.windowState[w.ID] = active
		kind := "blackout_window.entered"
		if !active {
			kind = "blackout_window.exited"
		}
		p.auditLog.Emit(kind, "scheduler", "blackout_window", w.ID, map[string]any{"name": w.Name})
	}
}
