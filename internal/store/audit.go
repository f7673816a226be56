package store

import (
	"context"
	"encoding/json"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// AppendAuditEvent is the only write audit events ever get — the log is
// append-only by construction; there is no UpdateAuditEvent.
func (s *Store) AppendAuditEvent(ctx context.Context, ev model.AuditEvent) error {
	details, err := json.Marshal(ev.Details)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "marshal audit details", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_events (id, kind, actor, entity_type, entity_id, details, created_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
	`, ev.ID, ev.Kind, ev.Actor, ev.EntityType, ev.EntityID, details)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "append audit event", err)
	}
	return nil
}

func (s *Store) ListAuditEvents(ctx context.Context, entityType, entityID string, limit int) ([]model.AuditEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, actor, entity_type, entity_id, details, created_at
		FROM audit_events WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list audit events", err)
	}
	defer rows.Close()

	var out []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var details []byte
		if err := rows.Scan(&ev.ID, &ev.Kind, &ev.Actor, &ev.EntityType, &ev.EntityID, &details, &ev.CreatedAt); err != nil {
			return nil, wrapQueryErr(err, "audit event not found")
		}
		_ = json.Unmarshal(details, &ev.Details)
		out = append(out, ev)
	}
	return out, rows.Err()
}
