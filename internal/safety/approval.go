package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// ApprovalStore is the subset of store.Store the approval gate needs.
type ApprovalStore interface {
	GetExecution(ctx context.Context, executionID string) (model.RunbookExecution, error)
	GetRunbook(ctx context.Context, runbookID string) (model.Runbook, error)
	SetExecutionStatus(ctx context.Context, executionID string, from, to model.ExecutionStatus) error
	SetExecutionApprover(ctx context.Context, executionID, approvedBy string) error
	ListPendingApprovalsOlderThan(ctx context.Context, cutoff time.Time) ([]model.RunbookExecution, error)
}

// ApprovalGate moves an execution from pending_approval back to pending once an
// authorized actor approves it, or to timeout if no one does in time.
type ApprovalGate struct {
	store ApprovalStore
}

func NewApprovalGate(store ApprovalStore) *ApprovalGate {
	return &ApprovalGate{store: store}
}

// Approve transitions executionID from pending_approval back to pending, so
// the worker pool's normal dispatch loop picks it up and drives its steps
// exactly like any other pending execution. It does not move straight to
// running itself — that would skip the orchestrator's gate checks and step
// loop entirely.
//
// actorRole must appear in the runbook's ApprovalRoles, unless the runbook
// declared no roles at all (an empty ApprovalRoles means any authenticated
// actor may approve).
func (g *ApprovalGate) Approve(ctx context.Context, executionID, actor, actorRole string) error {
	exec, err := g.store.GetExecution(ctx, executionID)
	if err != nil {
		return err
	}
	runbook, err := g.store.GetRunbook(ctx, exec.RunbookID)
	if err != nil {
		return err
	}
	if len(runbook.ApprovalRoles) > 0 && !hasRole(runbook.ApprovalRoles, actorRole) {
		return apierror.New(apierror.Forbidden, fmt.Sprintf("role %q is not authorized to approve runbook %s", actorRole, runbook.ID))
	}

	if err := g.store.SetExecutionApprover(ctx, executionID, actor); err != nil {
		return apierror.Wrap(apierror.Internal, "record approver", err)
	}
	if err := g.store.SetExecutionStatus(ctx, executionID, model.ExecutionPendingApproval, model.ExecutionPending); err != nil {
		return apierror.Wrap(apierror.InvalidTransition, fmt.Sprintf("approve execution %s", executionID), err)
	}
	return nil
}

func hasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

// SweepTimeouts transitions any pending_approval execution older than
// timeout to ExecutionTimedOut. Intended to be called once per scheduler
// tick.
func (g *ApprovalGate) SweepTimeouts(ctx context.Context, timeout time.Duration) (int, error) {
	cutoff := time.Now().Add(-timeout)
	stale, err := g.store.ListPendingApprovalsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, apierror.Wrap(apierror.Internal, "list stale approvals", err)
	}
	expired := 0
	for _, exec := range stale {
		if err := g.store.SetExecutionStatus(ctx, exec.ID, model.ExecutionPendingApproval, model.ExecutionTimedOut); err == nil {
			expired++
		}
	}
	return expired, nil
}
