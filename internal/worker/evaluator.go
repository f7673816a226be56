package worker

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/maftabmirza/remediation-engine-sub001/internal/audit"
	"github.com/maftabmirza/remediation-engine-sub001/internal/llmclient"
	"github.com/maftabmirza/remediation-engine-sub001/internal/queue"
	"github.com/maftabmirza/remediation-engine-sub001/internal/rules"
	"github.com/maftabmirza/remediation-engine-sub001/internal/trigger"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// EvaluatorStore is the subset of store.Store the evaluator needs to turn a
// matched rule or trigger into a pending execution.
type EvaluatorStore interface {
	GetRunbook(ctx context.Context, id string) (model.Runbook, error)
	CreateExecution(ctx context.Context, e model.RunbookExecution) (model.RunbookExecution, error)
}

// EvaluatorConfig tunes the evaluator's concurrency.
type EvaluatorConfig struct {
	Concurrency int
}

func DefaultEvaluatorConfig() EvaluatorConfig {
	return EvaluatorConfig{Concurrency: 8}
}

// Evaluator drains internal/queue with bounded concurrency and turns each
// alert into rule/trigger matches, the way cmd/remediatord's evaluate
// closure used to do inline from the HTTP handler. Moving it here means
// handleWebhook only ever enqueues — it never blocks on rule evaluation or
// a CreateExecution round trip.
type Evaluator struct {
	cfg      EvaluatorConfig
	queue    *queue.Queue
	store    EvaluatorStore
	rules    *rules.Engine
	triggers *trigger.Matcher
	analyzer llmclient.Analyzer
	auditLog *audit.Log
	log      *zap.Logger
}

func NewEvaluator(cfg EvaluatorConfig, q *queue.Queue, store EvaluatorStore, rulesEngine *rules.Engine,
	triggers *trigger.Matcher, analyzer llmclient.Analyzer, auditLog *audit.Log, log *zap.Logger) *Evaluator {
	return &Evaluator{
		cfg: cfg, queue: q, store: store, rules: rulesEngine, triggers: triggers,
		analyzer: analyzer, auditLog: auditLog, log: log,
	}
}

// Run drains the queue until ctx is cancelled, evaluating each alert with
// concurrency bounded by Config.Concurrency via errgroup.SetLimit — the
// same pattern Pool.dispatchPending uses for execution dispatch.
func (e *Evaluator) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(e.cfg.Concurrency)

	e.queue.Run(ctx, func(_ context.Context, alert model.Alert) {
		g.Go(func() error {
			e.evaluate(context.Background(), alert)
			return nil
		})
	})
	return g.Wait()
}

func (e *Evaluator) evaluate(ctx context.Context, alert model.Alert) {
	if match, ok := e.rules.Match(alert); ok {
		e.rules.MarkTriggered(match.Rule.ID, alert.ServerID, match.Rule.CooldownSeconds)
		e.handleRuleMatch(ctx, match)
	}
	if tmatch, ok := e.triggers.MatchAlert(ctx, alert); ok {
		e.triggers.MarkFired(tmatch.Trigger.ID, tmatch.Trigger.CooldownSeconds)
		e.enqueueFromTrigger(ctx, tmatch)
	}
}

// handleRuleMatch branches on the matched rule's Action: ignore drops the
// alert, manual leaves it for a human (an operator can still call
// /api/alerts/{id}/analyze), auto_analyze runs the LLM analyzer and, when
// the rule also opted into auto_trigger, enqueues the runbook execution.
func (e *Evaluator) handleRuleMatch(ctx context.Context, match *rules.Match) {
	switch match.Action {
	case model.RuleActionIgnore:
		e.auditLog.Emit("alert.ignored", "rule:"+match.Rule.Name, "alert", match.Alert.ID, nil)
	case model.RuleActionManual:
		e.auditLog.Emit("alert.requires_manual_review", "rule:"+match.Rule.Name, "alert", match.Alert.ID, nil)
	case model.RuleActionAutoAnalyze:
		e.analyze(ctx, match)
		if match.Rule.AutoTrigger && match.Rule.RunbookID != "" {
			e.enqueueFromRule(ctx, match.Rule, match.Alert)
		}
	}
}

func (e *Evaluator) analyze(ctx context.Context, match *rules.Match) {
	if e.analyzer == nil {
		return
	}
	analysis, err := e.analyzer.Analyze(ctx, match.Alert)
	if err != nil {
		e.log.Warn("auto-analyze failed", zap.String("rule_id", match.Rule.ID), zap.Error(err))
		return
	}
	e.auditLog.Emit("alert.analyzed", "rule:"+match.Rule.Name, "alert", match.Alert.ID, map[string]any{
		"root_cause":      analysis.RootCause,
		"impact":          analysis.Impact,
		"recommendations": analysis.Recommendations,
	})
}

// enqueueFromRule creates a pending execution for a rule match that opted
// into auto_trigger. It logs and drops on failure rather than blocking
// evaluation of the next alert — the worker pool's dispatch loop is the
// only path that drives an execution, this only ever enqueues one.
func (e *Evaluator) enqueueFromRule(ctx context.Context, rule model.AutoAnalyzeRule, alert model.Alert) {
	runbook, err := e.store.GetRunbook(ctx, rule.RunbookID)
	if err != nil {
		e.log.Warn("rule auto-trigger: load runbook failed", zap.String("rule_id", rule.ID), zap.Error(err))
		return
	}
	status := model.ExecutionPending
	if runbook.RequiresApproval {
		status = model.ExecutionPendingApproval
	}
	_, err = e.store.CreateExecution(ctx, model.RunbookExecution{
		ID:          uuid.NewString(),
		RunbookID:   runbook.ID,
		ServerID:    alert.ServerID,
		AlertID:     alert.ID,
		Status:      status,
		Origin:      model.TriggerOriginAlert,
		TriggeredBy: "rule:" + rule.Name,
	})
	if err != nil {
		e.log.Warn("rule auto-trigger: create execution failed", zap.String("rule_id", rule.ID), zap.Error(err))
	}
}

func (e *Evaluator) enqueueFromTrigger(ctx context.Context, m *trigger.Match) {
	runbook, err := e.store.GetRunbook(ctx, m.Trigger.RunbookID)
	if err != nil {
		e.log.Warn("trigger fire: load runbook failed", zap.String("trigger_id", m.Trigger.ID), zap.Error(err))
		return
	}
	status := model.ExecutionPending
	if runbook.RequiresApproval {
		status = model.ExecutionPendingApproval
	}
	_, err = e.store.CreateExecution(ctx, model.RunbookExecution{
		ID:          uuid.NewString(),
		RunbookID:   runbook.ID,
		ServerID:    m.ServerID,
		Status:      status,
		Origin:      model.TriggerOriginAlert,
		TriggeredBy: "trigger:" + m.Trigger.ID,
	})
	if err != nil {
		e.log.Warn("trigger fire: create execution failed", zap.String("trigger_id", m.Trigger.ID), zap.Error(err))
	}
}
