package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// UpsertAlert inserts a new alert or, on a fingerprint collision, increments
// occurrences and refreshes last_seen_at — mirroring the teacher's
// FindExistingAppliances-then-ON-CONFLICT-DO-UPDATE shape, but in one
// statement since fingerprint is a real unique key here (no fuzzy MAC
// matching is needed).
func (s *Store) UpsertAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	labels, err := json.Marshal(a.Labels)
	if err != nil {
		return model.Alert{}, apierror.Wrap(apierror.Internal, "marshal labels", err)
	}
	annotations, err := json.Marshal(a.Annotations)
	if err != nil {
		return model.Alert{}, apierror.Wrap(apierror.Internal, "marshal annotations", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO alerts (id, fingerprint, name, severity, status, labels, annotations, server_id, occurrences, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, now(), now())
		ON CONFLICT (fingerprint) DO UPDATE SET
			occurrences = alerts.occurrences + 1,
			last_seen_at = now(),
			status = EXCLUDED.status,
			severity = EXCLUDED.severity,
			labels = EXCLUDED.labels,
			annotations = EXCLUDED.annotations
		RETURNING id, fingerprint, name, severity, status, labels, annotations, server_id, occurrences, first_seen_at, last_seen_at, last_triggered_at, resolved_at
	`, a.ID, a.Fingerprint, a.Name, a.Severity, a.Status, labels, annotations, a.ServerID)

	return scanAlert(row)
}

// GetAlertByFingerprintForUpdate reads an alert by fingerprint inside tx and
// locks the row FOR UPDATE, the same locking the teacher uses in
// FindExistingAppliances. Intake does not call it; it serializes per
// fingerprint with in-process locks around UpsertAlert.
func (s *Store) GetAlertByFingerprintForUpdate(ctx context.Context, tx pgx.Tx, fingerprint string) (model.Alert, error) {
	row := tx.QueryRow(ctx, `
		SELECT id, fingerprint, name, severity, status, labels, annotations, server_id, occurrences, first_seen_at, last_seen_at, last_triggered_at, resolved_at
		FROM alerts WHERE fingerprint = $1 FOR UPDATE
	`, fingerprint)
	return scanAlert(row)
}

func (s *Store) GetAlert(ctx context.Context, id string) (model.Alert, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, fingerprint, name, severity, status, labels, annotations, server_id, occurrences, first_seen_at, last_seen_at, last_triggered_at, resolved_at
		FROM alerts WHERE id = $1
	`, id)
	return scanAlert(row)
}

// SetLastTriggered sets last_triggered_at to now() only if it still equals
// old (a compare-and-set). The trigger matcher does not call it; its
// cooldown is tracked in memory.
func (s *Store) SetLastTriggered(ctx context.Context, alertID string, old *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET last_triggered_at = now()
		WHERE id = $1 AND last_triggered_at IS NOT DISTINCT FROM $2
	`, alertID, old)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "set last_triggered_at", err)
	}
	if tag.RowsAffected() == 0 {
		return errInvalidTransition("alert", alertID, "previous trigger time", "now")
	}
	return nil
}

func (s *Store) ResolveAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE alerts SET status = $2, resolved_at = now()
		WHERE id = $1 AND status != $2
	`, id, model.AlertStatusResolved)
	if err != nil {
		return apierror.Wrap(apierror.Internal, "resolve alert", err)
	}
	if tag.RowsAffected() == 0 {
		return nil // already resolved; idempotent
	}
	return nil
}

func (s *Store) ListFiringAlerts(ctx context.Context) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, fingerprint, name, severity, status, labels, annotations, server_id, occurrences, first_seen_at, last_seen_at, last_triggered_at, resolved_at
		FROM alerts WHERE status = $1 ORDER BY last_seen_at DESC
	`, model.AlertStatusFiring)
	if err != nil {
		return nil, apierror.Wrap(apierror.Internal, "list firing alerts", err)
	}
	defer rows.Close()

	var out []model.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (model.Alert, error) {
	var a model.Alert
	var labels, annotations []byte
	if err := row.Scan(&a.ID, &a.Fingerprint, &a.Name, &a.Severity, &a.Status, &labels, &annotations,
		&a.ServerID, &a.Occurrences, &a.FirstSeenAt, &a.LastSeenAt, &a.LastTriggeredAt, &a.ResolvedAt); err != nil {
		return model.Alert{}, wrapQueryErr(err, "alert not found")
	}
	if err := json.Unmarshal(labels, &a.Labels); err != nil {
		return model.Alert{}, apierror.Wrap(apierror.Internal, "unmarshal labels", err)
	}
	if err := json.Unmarshal(annotations, &a.Annotations); err != nil {
		return model.Alert{}, apierror.Wrap(apierror.Internal, "unmarshal annotations", err)
	}
	return a, nil
}
