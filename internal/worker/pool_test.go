package worker

import (
	"context"
	"testing"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/internal/audit"
	"github.com/maftabmirza/remediation-engine-sub001/internal/safety"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
	"go.uber.org/zap"
)

func TestAlreadyFiredThisMinuteDedup(t *testing.T) {
	p := &Pool{lastTick: make(map[string]time.Time)}
	minute := time.Date(2026, 7, 31, 10, 5, 0, 0, time.UTC)

	if p.alreadyFiredThisMinute("t1", minute) {
		t.Fatal("should not be marked fired yet")
	}
	p.markFiredThisMinute("t1", minute)
	if !p.alreadyFiredThisMinute("t1", minute) {
		t.Error("expected the same minute to be deduplicated")
	}

	nextMinute := minute.Add(time.Minute)
	if p.alreadyFiredThisMinute("t1", nextMinute) {
		t.Error("a different minute must not be treated as already fired")
	}
}

type fakeBlackoutStore struct {
	windows []model.BlackoutWindow
}

func (f *fakeBlackoutStore) ListPendingExecutions(ctx context.Context, limit int) ([]model.RunbookExecution, error) {
	return nil, nil
}
func (f *fakeBlackoutStore) CreateExecution(ctx context.Context, e model.RunbookExecution) (model.RunbookExecution, error) {
	return e, nil
}
func (f *fakeBlackoutStore) ListAllTriggersByOrigin(ctx context.Context, origin model.TriggerOrigin) ([]model.RunbookTrigger, error) {
	return nil, nil
}
func (f *fakeBlackoutStore) GetRunbook(ctx context.Context, id string) (model.Runbook, error) {
	return model.Runbook{}, nil
}
func (f *fakeBlackoutStore) ListBlackoutWindows(ctx context.Context) ([]model.BlackoutWindow, error) {
	return f.windows, nil
}

type fakeAuditStore struct {
	events []model.AuditEvent
}

func (f *fakeAuditStore) AppendAuditEvent(ctx context.Context, ev model.AuditEvent) error {
	f.events = append(f.events, ev)
	return nil
}

func TestReportBlackoutTransitionsEmitsOnlyOnStateChange(t *testing.T) {
	store := &fakeBlackoutStore{}
	auditStore := &fakeAuditStore{}
	log := audit.New(auditStore, zap.NewNop(), 16)
	ctx, cancel := context.WithCancel(context.Background())
	go log.Run(ctx)
	defer func() {
		cancel()
		time.Sleep(10 * time.Millisecond)
	}()

	p := &Pool{
		store:       store,
		blackout:    safety.NewBlackoutChecker(),
		auditLog:    log,
		log:         zap.NewNop(),
		windowState: make(map[string]bool),
	}

	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	starts := now.Add(-time.Hour)
	ends := now.Add(time.Hour)
	store.windows = []model.BlackoutWindow{
		{ID: "w1", Name: "maint", Enabled: true, StartsAt: &starts, EndsAt: &ends},
	}

	p.reportBlackoutTransitions(ctx, now)
	time.Sleep(10 * time.Millisecond)
	if len(auditStore.events) != 1 {
		t.Fatalf("expected 1 entered event, got %d: %+v", len(auditStore.events), auditStore.events)
	}
	if auditStore.events[0].Kind != "blackout_window.entered" {
		t.Errorf("Kind = %q, want blackout_window.entered", auditStore.events[0].Kind)
	}

	// Calling again with the window still active must not emit a second event.
	p.reportBlackoutTransitions(ctx, now)
	time.Sleep(10 * time.Millisecond)
	if len(auditStore.events) != 1 {
		t.Fatalf("expected no additional event while still active, got %d", len(auditStore.events))
	}

	// Moving outside the window's range should emit an "exited" event.
	outside := now.Add(2 * time.Hour)
	p.reportBlackoutTransitions(ctx, outside)
	time.Sleep(10 * time.Millisecond)
	if len(auditStore.events) != 2 {
		t.Fatalf("expected an exited event, got %d: %+v", len(auditStore.events), auditStore.events)
	}
	if auditStore.events[1].Kind != "blackout_window.exited" {
		t.Errorf("Kind = %q, want blackout_window.exited", auditStore.events[1].Kind)
	}
}
