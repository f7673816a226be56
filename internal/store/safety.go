package store

import (
	"context"
	"encoding/json"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func (s *Store) GetBreaker(ctx context.Context, scope, scopeID string) (*model.CircuitBreaker, error) {
	var cb model.CircuitBreaker
	err := s.pool.QueryRow(ctx, `
		SELECT scope, scope_id, state, failures, manually_opened, opened_at, last_failure_at
		FROM circuit_breakers WHERE scope = $1 AND scope_id = $2
	`, scope, scopeID).Scan(&cb.Scope, &cb.ScopeID, &cb.State, &cb.Failures, &cb.ManuallyOpened, &cb.OpenedAt, &cb.LastFailureAt)
	if err != nil {
		if apierror.KindOf(wrapQueryErr(err, "breaker not found")) == apierror.NotFound {
			return nil, nil
		}
		return nil, wrapQueryErr(err, "breaker not found")
	}
	return &cb, nil
}

func (s *Store) UpsertBreaker(ctx context.Context, cb model.CircuitBreaker) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO circuit_breakers (scope, scope_id, state, failures, manually_opened, opened_at, last_failure_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (scope, scope_id) DO UPDATE SET
			state = EXCLUDED.state, failures = EXCLUDED.failures,
			manually_opened = EXCLUDED.manually_opened, opened_at = EXCLUDED.opened_at,
			last_failure_at = EXCLUDED.last_failure_at
	`, cb.Scope, cb.ScopeID, cb.State, cb.Failures, cb.ManuallyOpened, cb.OpenedAt, cb.LastFailureAt)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "upsert breaker", err)
	}
	return nil
}

func (s *Store) UpsertBlackoutWindow(ctx context.Context, w model.BlackoutWindow) error {
	runbookIDs, err := json.Marshal(w.AppliesToRunbookIDs)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "marshal applies_to_runbook_ids", err)
	}
	appliesTo := w.AppliesTo
	if appliesTo == "" {
		appliesTo = model.BlackoutAppliesToAll
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO blackout_windows (id, name, timezone, recurrence_rule, starts_at, ends_at,
			duration_minutes, scope_runbook_id, scope_server_id, applies_to, applies_to_runbook_ids, enabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, timezone = EXCLUDED.timezone, recurrence_rule = EXCLUDED.recurrence_rule,
			starts_at = EXCLUDED.starts_at, ends_at = EXCLUDED.ends_at, duration_minutes = EXCLUDED.duration_minutes,
			scope_runbook_id = EXCLUDED.scope_runbook_id, scope_server_id = EXCLUDED.scope_server_id,
			applies_to = EXCLUDED.applies_to, applies_to_runbook_ids = EXCLUDED.applies_to_runbook_ids,
			enabled = EXCLUDED.enabled
	`, w.ID, w.Name, w.Timezone, w.RecurrenceRule, w.StartsAt, w.EndsAt, w.DurationMinutes,
		w.ScopeRunbookID, w.ScopeServerID, appliesTo, runbookIDs, w.Enabled)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "upsert blackout window", err)
	}
	return nil
}

func (s *Store) ListBlackoutWindows(ctx context.Context) ([]model.BlackoutWindow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, timezone, recurrence_rule, starts_at, ends_at, duration_minutes,
			scope_runbook_id, scope_server_id, applies_to, applies_to_runbook_ids, enabled
		FROM blackout_windows
	`)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list blackout windows", err)
	}
	defer rows.Close()

	var out []model.BlackoutWindow
	for rows.Next() {
		var w model.BlackoutWindow
		var runbookIDs []byte
		if err := rows.Scan(&w.ID, &w.Name, &w.Timezone, &w.RecurrenceRule, &w.StartsAt, &w.EndsAt, &w.DurationMinutes,
			&w.ScopeRunbookID, &w.ScopeServerID, &w.AppliesTo, &runbookIDs, &w.Enabled); err != nil {
			return nil, wrapQueryErr(err, "blackout window not found")
		}
		_ = json.Unmarshal(runbookIDs, &w.AppliesToRunbookIDs)
		out = append(out, w)
	}
	return out, rows.Err()
}
