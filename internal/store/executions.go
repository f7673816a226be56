package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// CreateExecution inserts a new RunbookExecution in the given initial
// status (pending or pending_approval).
func (s *Store) CreateExecution(ctx context.Context, e model.RunbookExecution) (model.RunbookExecution, error) {
	vars, err := json.Marshal(e.Vars)
	if err != nil {
		return model.RunbookExecution{}, apierror.Wrap(apierror.Internal, "marshal vars", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO runbook_executions (id, runbook_id, alert_id, server_id, status, origin, triggered_by, vars,
			is_dry_run, bypass_cooldown, bypass_blackout, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11, now())
		RETURNING id, runbook_id, alert_id, server_id, status, origin, triggered_by, approved_by, vars,
			is_dry_run, bypass_cooldown, bypass_blackout, started_at, finished_at, created_at, error
	`, e.ID, e.RunbookID, e.AlertID, e.ServerID, e.Status, e.Origin, e.TriggeredBy, vars,
		e.IsDryRun, e.BypassCooldown, e.BypassBlackout)
	return scanExecution(row)
}

func (s *Store) GetExecution(ctx context.Context, id string) (model.RunbookExecution, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, runbook_id, alert_id, server_id, status, origin, triggered_by, approved_by, vars,
			is_dry_run, bypass_cooldown, bypass_blackout, started_at, finished_at, created_at, error
		FROM runbook_executions WHERE id = $1
	`, id)
	return scanExecution(row)
}

// SetExecutionStatus performs the compare-and-set UPDATE ... WHERE status =
// $expected that enforces every state-transition edge at the SQL layer —
// no separate read-modify-write race is possible.
func (s *Store) SetExecutionStatus(ctx context.Context, id string, from, to model.ExecutionStatus) error {
	var startedSet, finishedSet string
	switch to {
	case model.ExecutionRunning:
		startedSet = ", started_at = now()"
	case model.ExecutionSucceeded, model.ExecutionFailed, model.ExecutionRolledBack, model.ExecutionCancelled, model.ExecutionTimedOut:
		finishedSet = ", finished_at = now()"
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE runbook_executions SET status = $3`+startedSet+finishedSet+`
		WHERE id = $1 AND status = $2
	`, id, from, to)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "set execution status", err)
	}
	if tag.RowsAffected() == 0 {
		return errInvalidTransition("execution", id, from, to)
	}
	return nil
}

func (s *Store) SetExecutionApprover(ctx context.Context, id, approvedBy string) error {
	_, err := s.pool.Exec(ctx, `UPDATE runbook_executions SET approved_by = $2 WHERE id = $1`, id, approvedBy)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "set approver", err)
	}
	return nil
}

func (s *Store) SetExecutionError(ctx context.Context, id, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE runbook_executions SET error = $2 WHERE id = $1`, id, errMsg)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "set execution error", err)
	}
	return nil
}

// ListPendingExecutions returns executions ready for the worker pool to
// dispatch, oldest first, capped at limit per poll.
func (s *Store) ListPendingExecutions(ctx context.Context, limit int) ([]model.RunbookExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, runbook_id, alert_id, server_id, status, origin, triggered_by, approved_by, vars,
			is_dry_run, bypass_cooldown, bypass_blackout, started_at, finished_at, created_at, error
		FROM runbook_executions WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`, model.ExecutionPending, limit)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list pending executions", err)
	}
	defer rows.Close()

	var out []model.RunbookExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListPendingApprovalsOlderThan(ctx context.Context, cutoff time.Time) ([]model.RunbookExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, runbook_id, alert_id, server_id, status, origin, triggered_by, approved_by, vars,
			is_dry_run, bypass_cooldown, bypass_blackout, started_at, finished_at, created_at, error
		FROM runbook_executions WHERE status = $1 AND created_at < $2
	`, model.ExecutionPendingApproval, cutoff)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list pending approvals", err)
	}
	defer rows.Close()

	var out []model.RunbookExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountRunningExecutions supports the orchestrator's
// max_concurrent_executions gate.
func (s *Store) CountRunningExecutions(ctx context.Context, runbookID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM runbook_executions WHERE runbook_id = $1 AND status = $2
	`, runbookID, model.ExecutionRunning).Scan(&n)
	if err != nil {
		return 0, apierror.Wrap(apierror.Internal, "count running executions", err)
	}
	return n, nil
}

// CountExecutionsInWindow counts executions of runbookID on serverID created
// at or after since. The rate limiter does not call it; it counts through
// internal/cache.
func (s *Store) CountExecutionsInWindow(ctx context.Context, runbookID, serverID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM runbook_executions
		WHERE runbook_id = $1 AND server_id = $2 AND created_at >= $3
	`, runbookID, serverID, since).Scan(&n)
	if err != nil {
		return 0, apierror.Wrap(apierror.Internal, "count executions in window", err)
	}
	return n, nil
}

// CountStartedExecutionsInWindow backs the runbook cooldown gate. It counts
// by started_at rather than created_at so the execution currently being
// gated — already inserted as pending, not yet started — is never counted
// against its own cooldown.
func (s *Store) CountStartedExecutionsInWindow(ctx context.Context, runbookID, serverID string, since time.Time) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM runbook_executions
		WHERE runbook_id = $1 AND server_id = $2 AND started_at >= $3
	`, runbookID, serverID, since).Scan(&n)
	if err != nil {
		return 0, apierror.Wrap(apierror.Internal, "count started executions in window", err)
	}
	return n, nil
}

func scanExecution(row rowScanner) (model.RunbookExecution, error) {
	var e model.RunbookExecution
	var vars []byte
	if err := row.Scan(&e.ID, &e.RunbookID, &e.AlertID, &e.ServerID, &e.Status, &e.Origin, &e.TriggeredBy, &e.ApprovedBy, &vars,
		&e.IsDryRun, &e.BypassCooldown, &e.BypassBlackout, &e.StartedAt, &e.FinishedAt, &e.CreatedAt, &e.Error); err != nil {
		return model.RunbookExecution{}, wrapQueryErr(err, "execution not found")
	}
	_ = json.Unmarshal(vars, &e.Vars)
	return e, nil
}

// CreateStepExecution records the start of one step's run.
func (s *Store) CreateStepExecution(ctx context.Context, se model.StepExecution) (model.StepExecution, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO step_executions (id, execution_id, step_id, step_order, status, attempt, started_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
		RETURNING id, execution_id, step_id, step_order, status, output, exit_code, attempt, rolled_back, started_at, finished_at
	`, se.ID, se.ExecutionID, se.StepID, se.StepOrder, se.Status, se.Attempt)
	return scanStepExecution(row)
}

func (s *Store) CompleteStepExecution(ctx context.Context, id string, status model.ExecutionStatus, output string, exitCode int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE step_executions SET status = $2, output = $3, exit_code = $4, finished_at = now()
		WHERE id = $1
	`, id, status, output, exitCode)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "complete step execution", err)
	}
	return nil
}

func (s *Store) MarkStepRolledBack(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `UPDATE step_executions SET rolled_back = true WHERE id = $1`, id)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "mark step rolled back", err)
	}
	return nil
}

func (s *Store) ListStepExecutions(ctx context.Context, executionID string) ([]model.StepExecution, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, execution_id, step_id, step_order, status, output, exit_code, attempt, rolled_back, started_at, finished_at
		FROM step_executions WHERE execution_id = $1 ORDER BY step_order
	`, executionID)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list step executions", err)
	}
	defer rows.Close()

	var out []model.StepExecution
	for rows.Next() {
		se, err := scanStepExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

func scanStepExecution(row rowScanner) (model.StepExecution, error) {
	var se model.StepExecution
	if err := row.Scan(&se.ID, &se.ExecutionID, &se.StepID, &se.StepOrder, &se.Status, &se.Output, &se.ExitCode,
		&se.Attempt, &se.RolledBack, &se.StartedAt, &se.FinishedAt); err != nil {
		return model.StepExecution{}, wrapQueryErr(err, "step execution not found")
	}
	return se, nil
}
