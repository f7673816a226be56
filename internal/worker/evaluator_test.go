package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/internal/audit"
	"github.com/maftabmirza/remediation-engine-sub001/internal/llmclient"
	"github.com/maftabmirza/remediation-engine-sub001/internal/queue"
	"github.com/maftabmirza/remediation-engine-sub001/internal/rules"
	"github.com/maftabmirza/remediation-engine-sub001/internal/trigger"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

type fakeEvaluatorStore struct {
	mu        sync.Mutex
	runbook   model.Runbook
	created   []model.RunbookExecution
	getErr    error
	createErr error
}

func (f *fakeEvaluatorStore) GetRunbook(ctx context.Context, id string) (model.Runbook, error) {
	if f.getErr != nil {
		return model.Runbook{}, f.getErr
	}
	return f.runbook, nil
}

func (f *fakeEvaluatorStore) CreateExecution(ctx context.Context, e model.RunbookExecution) (model.RunbookExecution, error) {
	if f.createErr != nil {
		return model.RunbookExecution{}, f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, e)
	return e, nil
}

func (f *fakeEvaluatorStore) snapshot() []model.RunbookExecution {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.RunbookExecution, len(f.created))
	copy(out, f.created)
	return out
}

type fakeAnalyzer struct {
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, alert model.Alert) (llmclient.Analysis, error) {
	f.calls++
	return llmclient.Analysis{RootCause: "disk full"}, nil
}

func newTestAuditLog() *audit.Log {
	return audit.New(noopAuditStore{}, zap.NewNop(), 16)
}

type noopAuditStore struct{}

func (noopAuditStore) AppendAuditEvent(ctx context.Context, ev model.AuditEvent) error { return nil }

func TestEvaluatorAutoTriggerEnqueuesExecution(t *testing.T) {
	store := &fakeEvaluatorStore{runbook: model.Runbook{ID: "rb-1"}}
	rulesEngine := rules.NewEngine()
	rulesEngine.LoadRules([]model.AutoAnalyzeRule{
		{ID: "r1", Name: "disk-full", Enabled: true, Action: model.RuleActionAutoAnalyze, AutoTrigger: true, RunbookID: "rb-1"},
	})
	triggers := trigger.NewMatcher(nil)
	analyzer := &fakeAnalyzer{}
	auditLog := newTestAuditLog()
	ctx, cancel := context.WithCancel(context.Background())
	go auditLog.Run(ctx)
	defer cancel()

	q := queue.New(zap.NewNop(), 4)
	ev := NewEvaluator(DefaultEvaluatorConfig(), q, store, rulesEngine, triggers, analyzer, auditLog, zap.NewNop())

	runCtx, runCancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = ev.Run(runCtx); close(done) }()

	q.Enqueue(model.Alert{ID: "a1", ServerID: "srv-1", Severity: "critical"})

	deadline := time.Now().Add(time.Second)
	for len(store.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	runCancel()
	<-done

	created := store.snapshot()
	if len(created) != 1 {
		t.Fatalf("expected 1 enqueued execution, got %d", len(created))
	}
	if created[0].RunbookID != "rb-1" || created[0].ServerID != "srv-1" {
		t.Errorf("execution = %+v, unexpected runbook/server", created[0])
	}
	if created[0].Status != model.ExecutionPending {
		t.Errorf("status = %q, want pending (runbook does not require approval)", created[0].Status)
	}
	if analyzer.calls != 1 {
		t.Errorf("analyzer.calls = %d, want 1 (auto_analyze action)", analyzer.calls)
	}
}

func TestEvaluatorIgnoreActionNeverEnqueues(t *testing.T) {
	store := &fakeEvaluatorStore{runbook: model.Runbook{ID: "rb-1"}}
	rulesEngine := rules.NewEngine()
	rulesEngine.LoadRules([]model.AutoAnalyzeRule{
		{ID: "r1", Name: "noisy", Enabled: true, Action: model.RuleActionIgnore},
	})
	triggers := trigger.NewMatcher(nil)
	auditLog := newTestAuditLog()
	ctx, cancel := context.WithCancel(context.Background())
	go auditLog.Run(ctx)
	defer cancel()

	q := queue.New(zap.NewNop(), 4)
	ev := NewEvaluator(DefaultEvaluatorConfig(), q, store, rulesEngine, triggers, nil, auditLog, zap.NewNop())

	ev.evaluate(context.Background(), model.Alert{ID: "a1", ServerID: "srv-1"})

	if len(store.snapshot()) != 0 {
		t.Fatalf("ignore action must never create an execution, got %d", len(store.snapshot()))
	}
}

func TestEvaluatorRequiresApprovalStatus(t *testing.T) {
	store := &fakeEvaluatorStore{runbook: model.Runbook{ID: "rb-1", RequiresApproval: true}}
	rulesEngine := rules.NewEngine()
	rulesEngine.LoadRules([]model.AutoAnalyzeRule{
		{ID: "r1", Name: "disk-full", Enabled: true, Action: model.RuleActionAutoAnalyze, AutoTrigger: true, RunbookID: "rb-1"},
	})
	triggers := trigger.NewMatcher(nil)
	auditLog := newTestAuditLog()
	ctx, cancel := context.WithCancel(context.Background())
	go auditLog.Run(ctx)
	defer cancel()

	q := queue.New(zap.NewNop(), 4)
	ev := NewEvaluator(DefaultEvaluatorConfig(), q, store, rulesEngine, triggers, nil, auditLog, zap.NewNop())

	ev.evaluate(context.Background(), model.Alert{ID: "a1", ServerID: "srv-1"})

	created := store.snapshot()
	if len(created) != 1 {
		t.Fatalf("expected 1 enqueued execution, got %d", len(created))
	}
	if created[0].Status != model.ExecutionPendingApproval {
		t.Errorf("status = %q, want pending_approval", created[0].Status)
	}
}
