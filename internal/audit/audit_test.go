package audit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
	"go.uber.org/zap"
)

type fakeStore struct {
	mu     sync.Mutex
	events []model.AuditEvent
}

func (f *fakeStore) AppendAuditEvent(ctx context.Context, ev model.AuditEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeStore) snapshot() []model.AuditEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.AuditEvent, len(f.events))
	copy(out, f.events)
	return out
}

func TestEmitAssignsIDAndPersistsInOrder(t *testing.T) {
	store := &fakeStore{}
	log := New(store, zap.NewNop(), 8)
	ctx, cancel := context.WithCancel(context.Background())
	go log.Run(ctx)
	defer cancel()

	log.Emit("execution.started", "scheduler", "runbook_execution", "exec-1", nil)
	log.Emit("execution.succeeded", "scheduler", "runbook_execution", "exec-1", nil)

	deadline := time.Now().Add(time.Second)
	for len(store.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	events := store.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected 2 persisted events, got %d", len(events))
	}
	if events[0].Kind != "execution.started" || events[1].Kind != "execution.succeeded" {
		t.Errorf("events persisted out of order: %+v", events)
	}
	if events[0].ID == "" {
		t.Error("expected Emit to assign an ID")
	}
	if events[0].EntityID != "exec-1" {
		t.Errorf("EntityID = %q, want exec-1", events[0].EntityID)
	}
}

func TestDrainRemainingFlushesQueueOnShutdown(t *testing.T) {
	store := &fakeStore{}
	log := New(store, zap.NewNop(), 8)
	ctx, cancel := context.WithCancel(context.Background())

	// Queue events before Run starts draining, then cancel immediately so
	// drainRemaining (not the select loop) is what persists them.
	log.Emit("a", "x", "entity", "1", nil)
	log.Emit("b", "x", "entity", "2", nil)
	cancel()
	log.Run(ctx)

	events := store.snapshot()
	if len(events) != 2 {
		t.Fatalf("expected drainRemaining to flush both queued events, got %d", len(events))
	}
}

func TestBacklogReportsQueueDepth(t *testing.T) {
	store := &fakeStore{}
	log := New(store, zap.NewNop(), 8)

	if log.Backlog() != 0 {
		t.Fatalf("Backlog() = %d, want 0 before any Emit", log.Backlog())
	}
	log.Emit("a", "x", "entity", "1", nil)
	if log.Backlog() != 1 {
		t.Errorf("Backlog() = %d, want 1 with Run not yet draining", log.Backlog())
	}
}
