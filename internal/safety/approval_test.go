package safety

import (
	"context"
	"testing"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

type fakeApprovalStore struct {
	statuses      map[string]model.ExecutionStatus
	approvers     map[string]string
	staleExecs    []model.RunbookExecution
	setStatusErrs map[string]error
	execs         map[string]model.RunbookExecution
	runbooks      map[string]model.Runbook
}

func newFakeApprovalStore() *fakeApprovalStore {
	return &fakeApprovalStore{
		statuses:  map[string]model.ExecutionStatus{},
		approvers: map[string]string{},
		execs:     map[string]model.RunbookExecution{},
		runbooks:  map[string]model.Runbook{},
	}
}

func (f *fakeApprovalStore) GetExecution(ctx context.Context, executionID string) (model.RunbookExecution, error) {
	if exec, ok := f.execs[executionID]; ok {
		return exec, nil
	}
	return model.RunbookExecution{ID: executionID}, nil
}

func (f *fakeApprovalStore) GetRunbook(ctx context.Context, runbookID string) (model.Runbook, error) {
	return f.runbooks[runbookID], nil
}

func (f *fakeApprovalStore) SetExecutionStatus(ctx context.Context, executionID string, from, to model.ExecutionStatus) error {
	if err := f.setStatusErrs[executionID]; err != nil {
		return err
	}
	f.statuses[executionID] = to
	return nil
}

func (f *fakeApprovalStore) SetExecutionApprover(ctx context.Context, executionID, approvedBy string) error {
	f.approvers[executionID] = approvedBy
	return nil
}

func (f *fakeApprovalStore) ListPendingApprovalsOlderThan(ctx context.Context, cutoff time.Time) ([]model.RunbookExecution, error) {
	return f.staleExecs, nil
}

func TestApprovalGateApproveMovesToPendingNotRunning(t *testing.T) {
	store := newFakeApprovalStore()
	g := NewApprovalGate(store)

	if err := g.Approve(context.Background(), "exec-1", "jdoe", "operator"); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if got := store.statuses["exec-1"]; got != model.ExecutionPending {
		t.Errorf("status = %q, want %q (the worker pool's normal dispatch picks it back up, not straight to running)", got, model.ExecutionPending)
	}
	if got := store.approvers["exec-1"]; got != "jdoe" {
		t.Errorf("approver = %q, want %q", got, "jdoe")
	}
}

func TestApprovalGateApproveRejectsUnauthorizedRole(t *testing.T) {
	store := newFakeApprovalStore()
	store.execs["exec-1"] = model.RunbookExecution{ID: "exec-1", RunbookID: "rb-1"}
	store.runbooks["rb-1"] = model.Runbook{ID: "rb-1", ApprovalRoles: []string{"sre-lead", "admin"}}
	g := NewApprovalGate(store)

	if err := g.Approve(context.Background(), "exec-1", "jdoe", "operator"); err == nil {
		t.Fatal("expected approval from an unlisted role to be rejected")
	}
	if _, ok := store.statuses["exec-1"]; ok {
		t.Error("status should not change when approval is rejected")
	}

	if err := g.Approve(context.Background(), "exec-1", "jdoe", "sre-lead"); err != nil {
		t.Fatalf("Approve with an authorized role: %v", err)
	}
	if got := store.statuses["exec-1"]; got != model.ExecutionPending {
		t.Errorf("status = %q, want %q", got, model.ExecutionPending)
	}
}

func TestApprovalGateSweepTimeoutsExpiresStaleApprovals(t *testing.T) {
	store := newFakeApprovalStore()
	store.staleExecs = []model.RunbookExecution{{ID: "exec-1"}, {ID: "exec-2"}}
	g := NewApprovalGate(store)

	n, err := g.SweepTimeouts(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("SweepTimeouts: %v", err)
	}
	if n != 2 {
		t.Errorf("expired count = %d, want 2", n)
	}
	if store.statuses["exec-1"] != model.ExecutionTimedOut || store.statuses["exec-2"] != model.ExecutionTimedOut {
		t.Errorf("expected both stale executions to move to timeout, got %+v", store.statuses)
	}
}

func TestApprovalGateSweepTimeoutsWithNoStaleExecutions(t *testing.T) {
	store := newFakeApprovalStore()
	g := NewApprovalGate(store)

	n, err := g.SweepTimeouts(context.Background(), 30*time.Minute)
	if err != nil {
		t.Fatalf("SweepTimeouts: %v", err)
	}
	if n != 0 {
		t.Errorf("expired count = %d, want 0", n)
	}
}
