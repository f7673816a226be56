// Package audit implements the append-only event log (C10): callers Emit
// onto a bounded channel drained by a single worker goroutine, so logging an
// event never reorders or drops it — Emit blocks the caller once the
// channel is full rather than discarding the event.
package audit

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// Store is the subset of store.Store the audit worker needs.
type Store interface {
	AppendAuditEvent(ctx context.Context, ev model.AuditEvent) error
}

// Log owns the bounded channel and its single drain goroutine.
type Log struct {
	store Store
	log   *zap.Logger
	ch    chan model.AuditEvent
}

// New builds a Log with the given channel capacity (backlog depth before
// Emit starts blocking callers).
func New(store Store, log *zap.Logger, capacity int) *Log {
	return &Log{store: store, log: log, ch: make(chan model.AuditEvent, capacity)}
}

// Emit enqueues a new event with a fresh id; the store stamps its
// created_at on insert. It blocks if the
// channel is full — the log never silently drops an event.
func (l *Log) Emit(kind, actor, entityType, entityID string, details map[string]any) {
	ev := model.AuditEvent{
		ID:         uuid.NewString(),
		Kind:       kind,
		Actor:      actor,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
	l.ch <- ev
}

// Run drains the channel until ctx is cancelled, persisting each event in
// order. Call it from exactly one goroutine.
func (l *Log) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.drainRemaining()
			return
		case ev := <-l.ch:
			l.persist(ev)
		}
	}
}

func (l *Log) drainRemaining() {
	for {
		select {
		case ev := <-l.ch:
			l.persist(ev)
		default:
			return
		}
	}
}

func (l *Log) persist(ev model.AuditEvent) {
	if err := l.store.AppendAuditEvent(context.Background(), ev); err != nil {
		l.log.Error("failed to persist audit event", zap.String("kind", ev.Kind), zap.String("entity_id", ev.EntityID), zap.Error(err))
	}
}

// Backlog returns the number of events currently queued, for health
// reporting.
func (l *Log) Backlog() int { return len(l.ch) }
