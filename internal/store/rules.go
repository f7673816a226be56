package store

import (
	"context"
	"encoding/json"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func (s *Store) UpsertRule(ctx context.Context, r model.AutoAnalyzeRule) (model.AutoAnalyzeRule, error) {
	severity, err := json.Marshal(r.SeverityFilter)
	if err != nil {
		return model.AutoAnalyzeRule{}, apierror.Wrap(apierror.Internal, "marshal severity_filter", err)
	}
	conditions, err := json.Marshal(r.Conditions)
	if err != nil {
		return model.AutoAnalyzeRule{}, apierror.Wrap(apierror.Internal, "marshal conditions", err)
	}
	var jsonLogic []byte
	if r.JSONLogic != nil {
		jsonLogic, err = json.Marshal(r.JSONLogic)
		if err != nil {
			return model.AutoAnalyzeRule{}, apierror.Wrap(apierror.Internal, "marshal json_logic", err)
		}
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO auto_analyze_rules (id, name, description, priority, enabled, severity_filter,
			conditions, json_logic, action, runbook_id, auto_trigger, cooldown_seconds)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (name) DO UPDATE SET
			description = EXCLUDED.description, priority = EXCLUDED.priority, enabled = EXCLUDED.enabled,
			severity_filter = EXCLUDED.severity_filter, conditions = EXCLUDED.conditions,
			json_logic = EXCLUDED.json_logic, action = EXCLUDED.action, runbook_id = EXCLUDED.runbook_id,
			auto_trigger = EXCLUDED.auto_trigger, cooldown_seconds = EXCLUDED.cooldown_seconds
		RETURNING id, name, description, priority, enabled, severity_filter, conditions, json_logic,
			action, runbook_id, auto_trigger, cooldown_seconds
	`, r.ID, r.Name, r.Description, r.Priority, r.Enabled, severity, conditions, jsonLogic,
		r.Action, r.RunbookID, r.AutoTrigger, r.CooldownSeconds)
	return scanRule(row)
}

func (s *Store) GetRule(ctx context.Context, id string) (model.AutoAnalyzeRule, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, priority, enabled, severity_filter, conditions, json_logic,
			action, runbook_id, auto_trigger, cooldown_seconds
		FROM auto_analyze_rules WHERE id = $1
	`, id)
	return scanRule(row)
}

func (s *Store) ListRules(ctx context.Context) ([]model.AutoAnalyzeRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, priority, enabled, severity_filter, conditions, json_logic,
			action, runbook_id, auto_trigger, cooldown_seconds
		FROM auto_analyze_rules ORDER BY priority
	`)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list rules", err)
	}
	defer rows.Close()

	var out []model.AutoAnalyzeRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) DeleteRule(ctx context.Context, id string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM auto_analyze_rules WHERE id = $1`, id)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "delete rule", err)
	}
	return nil
}

func scanRule(row rowScanner) (model.AutoAnalyzeRule, error) {
	var r model.AutoAnalyzeRule
	var severity, conditions, jsonLogic []byte
	if err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Priority, &r.Enabled, &severity, &conditions,
		&jsonLogic, &r.Action, &r.RunbookID, &r.AutoTrigger, &r.CooldownSeconds); err != nil {
		return model.AutoAnalyzeRule{}, wrapQueryErr(err, "rule not found")
	}
	_ = json.Unmarshal(severity, &r.SeverityFilter)
	_ = json.Unmarshal(conditions, &r.Conditions)
	if len(jsonLogic) > 0 {
		var jl model.Condition
		if err := json.Unmarshal(jsonLogic, &jl); err == nil {
			r.JSONLogic = &jl
		}
	}
	return r, nil
}
