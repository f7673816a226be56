package store

import (
	"context"
	"encoding/json"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func (s *Store) UpsertRunbook(ctx context.Context, r model.Runbook) (model.Runbook, error) {
	approvalRoles, err := json.Marshal(r.ApprovalRoles)
	if err != nil {
		return model.Runbook{}, apierror.Wrap(apierror.Internal, "marshal approval roles", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO runbooks (id, name, description, version, enabled, requires_approval,
			max_concurrent_executions, rate_limit_count, rate_limit_window_seconds,
			failure_threshold, failure_window_minutes, open_duration_minutes,
			cooldown_minutes, approval_roles, target_from_alert, target_alert_label, default_server_id,
			created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17, now(), now())
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description,
			version = runbooks.version + 1,
			enabled = EXCLUDED.enabled,
			requires_approval = EXCLUDED.requires_approval,
			max_concurrent_executions = EXCLUDED.max_concurrent_executions,
			rate_limit_count = EXCLUDED.rate_limit_count,
			rate_limit_window_seconds = EXCLUDED.rate_limit_window_seconds,
			failure_threshold = EXCLUDED.failure_threshold,
			failure_window_minutes = EXCLUDED.failure_window_minutes,
			open_duration_minutes = EXCLUDED.open_duration_minutes,
			cooldown_minutes = EXCLUDED.cooldown_minutes,
			approval_roles = EXCLUDED.approval_roles,
			target_from_alert = EXCLUDED.target_from_alert,
			target_alert_label = EXCLUDED.target_alert_label,
			default_server_id = EXCLUDED.default_server_id,
			updated_at = now()
		RETURNING id, name, description, version, enabled, requires_approval,
			max_concurrent_executions, rate_limit_count, rate_limit_window_seconds,
			failure_threshold, failure_window_minutes, open_duration_minutes,
			cooldown_minutes, approval_roles, target_from_alert, target_alert_label, default_server_id,
			created_at, updated_at
	`, r.ID, r.Name, r.Description, r.Version, r.Enabled, r.RequiresApproval,
		r.MaxConcurrentExecutions, r.RateLimitCount, r.RateLimitWindowSeconds,
		r.FailureThreshold, r.FailureWindowMinutes, r.OpenDurationMinutes,
		r.CooldownMinutes, approvalRoles, r.TargetFromAlert, r.TargetAlertLabel, r.DefaultServerID)
	return scanRunbook(row)
}

func (s *Store) GetRunbook(ctx context.Context, id string) (model.Runbook, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, version, enabled, requires_approval,
			max_concurrent_executions, rate_limit_count, rate_limit_window_seconds,
			failure_threshold, failure_window_minutes, open_duration_minutes,
			cooldown_minutes, approval_roles, target_from_alert, target_alert_label, default_server_id,
			created_at, updated_at
		FROM runbooks WHERE id = $1
	`, id)
	return scanRunbook(row)
}

func (s *Store) ListEnabledRunbooks(ctx context.Context) ([]model.Runbook, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, version, enabled, requires_approval,
			max_concurrent_executions, rate_limit_count, rate_limit_window_seconds,
			failure_threshold, failure_window_minutes, open_duration_minutes,
			cooldown_minutes, approval_roles, target_from_alert, target_alert_label, default_server_id,
			created_at, updated_at
		FROM runbooks WHERE enabled = true ORDER BY name
	`)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list runbooks", err)
	}
	defer rows.Close()
	var out []model.Runbook
	for rows.Next() {
		r, err := scanRunbook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRunbook(row rowScanner) (model.Runbook, error) {
	var r model.Runbook
	var approvalRoles []byte
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Version, &r.Enabled, &r.RequiresApproval,
		&r.MaxConcurrentExecutions, &r.RateLimitCount, &r.RateLimitWindowSeconds,
		&r.FailureThreshold, &r.FailureWindowMinutes, &r.OpenDurationMinutes,
		&r.CooldownMinutes, &approvalRoles, &r.TargetFromAlert, &r.TargetAlertLabel, &r.DefaultServerID,
		&r.CreatedAt, &r.UpdatedAt); err != nil {
		return model.Runbook{}, wrapQueryErr(err, "runbook not found")
	}
	_ = json.Unmarshal(approvalRoles, &r.ApprovalRoles)
	return r, nil
}

// UpsertStep replaces one RunbookStep by (runbook_id, step_order).
func (s *Store) UpsertStep(ctx context.Context, step model.RunbookStep) error {
	headers, err := json.Marshal(step.APIHeaders)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "marshal api headers", err)
	}
	retryStatus, err := json.Marshal(step.APIRetryOnStatus)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "marshal retry status codes", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO runbook_steps (id, runbook_id, step_order, name, type, command_linux, command_windows,
			api_endpoint, api_method, api_body_type, api_body, api_headers, api_retry_on_status_codes,
			requires_elevation, timeout_seconds, retries, retry_delay_seconds, continue_on_failure,
			rollback_command_linux, rollback_command_windows,
			expected_exit_code, expected_output_pattern, output_variable, output_extract_pattern)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24)
		ON CONFLICT (runbook_id, step_order) DO UPDATE SET
			id = EXCLUDED.id, name = EXCLUDED.name, type = EXCLUDED.type,
			command_linux = EXCLUDED.command_linux, command_windows = EXCLUDED.command_windows,
			api_endpoint = EXCLUDED.api_endpoint, api_method = EXCLUDED.api_method,
			api_body_type = EXCLUDED.api_body_type, api_body = EXCLUDED.api_body,
			api_headers = EXCLUDED.api_headers, api_retry_on_status_codes = EXCLUDED.api_retry_on_status_codes,
			requires_elevation = EXCLUDED.requires_elevation, timeout_seconds = EXCLUDED.timeout_seconds,
			retries = EXCLUDED.retries, retry_delay_seconds = EXCLUDED.retry_delay_seconds,
			continue_on_failure = EXCLUDED.continue_on_failure,
			rollback_command_linux = EXCLUDED.rollback_command_linux,
			rollback_command_windows = EXCLUDED.rollback_command_windows,
			expected_exit_code = EXCLUDED.expected_exit_code,
			expected_output_pattern = EXCLUDED.expected_output_pattern,
			output_variable = EXCLUDED.output_variable,
			output_extract_pattern = EXCLUDED.output_extract_pattern
	`, step.ID, step.RunbookID, step.StepOrder, step.Name, step.Type, step.CommandLinux, step.CommandWindows,
		step.APIEndpoint, step.APIMethod, step.APIBodyType, step.APIBody, headers, retryStatus,
		step.RequiresElevation, step.TimeoutSeconds, step.Retries, step.RetryDelaySeconds, step.ContinueOnFailure,
		step.RollbackCommandLinux, step.RollbackCommandWindows,
		step.ExpectedExitCode, step.ExpectedOutputPattern, step.OutputVariable, step.OutputExtractPattern)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "upsert step", err)
	}
	return nil
}

func (s *Store) ListSteps(ctx context.Context, runbookID string) ([]model.RunbookStep, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, runbook_id, step_order, name, type, command_linux, command_windows,
			api_endpoint, api_method, api_body_type, api_body, api_headers, api_retry_on_status_codes,
			requires_elevation, timeout_seconds, retries, retry_delay_seconds, continue_on_failure,
			rollback_command_linux, rollback_command_windows,
			expected_exit_code, expected_output_pattern, output_variable, output_extract_pattern
		FROM runbook_steps WHERE runbook_id = $1 ORDER BY step_order
	`, runbookID)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list steps", err)
	}
	defer rows.Close()

	var out []model.RunbookStep
	for rows.Next() {
		var st model.RunbookStep
		var headers, retryStatus []byte
		if err := rows.Scan(&st.ID, &st.RunbookID, &st.StepOrder, &st.Name, &st.Type, &st.CommandLinux, &st.CommandWindows,
			&st.APIEndpoint, &st.APIMethod, &st.APIBodyType, &st.APIBody, &headers, &retryStatus,
			&st.RequiresElevation, &st.TimeoutSeconds, &st.Retries, &st.RetryDelaySeconds, &st.ContinueOnFailure,
			&st.RollbackCommandLinux, &st.RollbackCommandWindows,
			&st.ExpectedExitCode, &st.ExpectedOutputPattern, &st.OutputVariable, &st.OutputExtractPattern); err != nil {
			return nil, wrapQueryErr(err, "step not found")
		}
		_ = json.Unmarshal(headers, &st.APIHeaders)
		_ = json.Unmarshal(retryStatus, &st.APIRetryOnStatus)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) UpsertTrigger(ctx context.Context, t model.RunbookTrigger) error {
	conditions, err := json.Marshal(t.Conditions)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "marshal trigger conditions", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO runbook_triggers (id, runbook_id, origin, conditions, min_occurrences, min_duration_seconds,
			cooldown_seconds, cron_expression, target_from_alert, target_server_id, enabled, priority, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
		ON CONFLICT (id) DO UPDATE SET
			origin = EXCLUDED.origin, conditions = EXCLUDED.conditions,
			min_occurrences = EXCLUDED.min_occurrences, min_duration_seconds = EXCLUDED.min_duration_seconds,
			cooldown_seconds = EXCLUDED.cooldown_seconds, cron_expression = EXCLUDED.cron_expression,
			target_from_alert = EXCLUDED.target_from_alert, target_server_id = EXCLUDED.target_server_id,
			enabled = EXCLUDED.enabled, priority = EXCLUDED.priority
	`, t.ID, t.RunbookID, t.Origin, conditions, t.MinOccurrences, t.MinDurationSeconds,
		t.CooldownSeconds, t.CronExpression, t.TargetFromAlert, t.TargetServerID, t.Enabled, t.Priority)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "upsert trigger", err)
	}
	return nil
}

const triggerColumns = `id, runbook_id, origin, conditions, min_occurrences, min_duration_seconds,
	cooldown_seconds, cron_expression, target_from_alert, target_server_id, enabled, priority, created_at`

func scanTrigger(row rowScanner) (model.RunbookTrigger, error) {
	var t model.RunbookTrigger
	var conditions []byte
	if err := row.Scan(&t.ID, &t.RunbookID, &t.Origin, &conditions, &t.MinOccurrences, &t.MinDurationSeconds,
		&t.CooldownSeconds, &t.CronExpression, &t.TargetFromAlert, &t.TargetServerID, &t.Enabled,
		&t.Priority, &t.CreatedAt); err != nil {
		return model.RunbookTrigger{}, wrapQueryErr(err, "trigger not found")
	}
	_ = json.Unmarshal(conditions, &t.Conditions)
	return t, nil
}

func (s *Store) ListTriggers(ctx context.Context, runbookID string) ([]model.RunbookTrigger, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+triggerColumns+` FROM runbook_triggers WHERE runbook_id = $1`, runbookID)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list triggers", err)
	}
	defer rows.Close()

	var out []model.RunbookTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListAllEnabledTriggers returns every enabled trigger across every
// runbook, regardless of origin — used to rebuild the in-memory trigger
// matcher after any trigger is created or updated through the API.
func (s *Store) ListAllEnabledTriggers(ctx context.Context) ([]model.RunbookTrigger, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+triggerColumns+` FROM runbook_triggers WHERE enabled = true`)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list all enabled triggers", err)
	}
	defer rows.Close()

	var out []model.RunbookTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListAllTriggersByOrigin supports the scheduler, which needs every
// schedule-origin trigger across all runbooks on each tick.
func (s *Store) ListAllTriggersByOrigin(ctx context.Context, origin model.TriggerOrigin) ([]model.RunbookTrigger, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+triggerColumns+` FROM runbook_triggers WHERE origin = $1 AND enabled = true`, origin)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list triggers by origin", err)
	}
	defer rows.Close()

	var out []model.RunbookTrigger
	for rows.Next() {
		t, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
