// Package queue decouples alert intake from rule/trigger evaluation: HTTP
// handlers enqueue an alert and return immediately, a separate worker
// drains the queue and does the actual matching and execution creation.
// Grounded on internal/audit.Log's bounded-channel/single-drain pattern —
// Enqueue blocks once the channel is full rather than dropping an alert.
package queue

import (
	"context"

	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// Handler evaluates one alert: rule/trigger matching and whatever
// execution-creation follows from the match.
type Handler func(ctx context.Context, alert model.Alert)

// Queue owns the bounded channel of alerts awaiting evaluation.
type Queue struct {
	log *zap.Logger
	ch  chan model.Alert
}

// New builds a Queue with the given channel capacity (backlog depth before
// Enqueue starts blocking callers).
func New(log *zap.Logger, capacity int) *Queue {
	return &Queue{log: log, ch: make(chan model.Alert, capacity)}
}

// Enqueue hands alert off for evaluation. It blocks if the queue is full —
// intake never silently drops an alert it already persisted.
func (q *Queue) Enqueue(alert model.Alert) {
	q.ch <- alert
}

// Backlog returns the number of alerts currently queued, for health
// reporting.
func (q *Queue) Backlog() int { return len(q.ch) }

// Run drains the queue until ctx is cancelled, invoking handle for each
// alert in arrival order. Call it from exactly one goroutine; handle itself
// is expected to fan work out with its own bounded concurrency.
func (q *Queue) Run(ctx context.Context, handle Handler) {
	for {
		select {
		case <-ctx.Done():
			q.drainRemaining(handle)
			return
		case alert := <-q.ch:
			handle(ctx, alert)
		}
	}
}

func (q *Queue) drainRemaining(handle Handler) {
	for {
		select {
		case alert := <-q.ch:
			handle(context.Background(), alert)
		default:
			return
		}
	}
}
