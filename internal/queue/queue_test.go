package queue

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func TestQueueRunDeliversInOrder(t *testing.T) {
	q := New(zap.NewNop(), 4)
	q.Enqueue(model.Alert{ID: "a1"})
	q.Enqueue(model.Alert{ID: "a2"})
	q.Enqueue(model.Alert{ID: "a3"})

	ctx, cancel := context.WithCancel(context.Background())
	var got []string
	done := make(chan struct{})
	go func() {
		q.Run(ctx, func(_ context.Context, a model.Alert) { got = append(got, a.ID) })
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for len(got) < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if len(got) != 3 || got[0] != "a1" || got[1] != "a2" || got[2] != "a3" {
		t.Fatalf("got %v, want [a1 a2 a3] in order", got)
	}
}

func TestQueueBacklogReflectsUndrainedEntries(t *testing.T) {
	q := New(zap.NewNop(), 4)
	if q.Backlog() != 0 {
		t.Fatalf("Backlog() = %d, want 0 before any Enqueue", q.Backlog())
	}
	q.Enqueue(model.Alert{ID: "a1"})
	q.Enqueue(model.Alert{ID: "a2"})
	if q.Backlog() != 2 {
		t.Fatalf("Backlog() = %d, want 2", q.Backlog())
	}
}

func TestQueueRunDrainsRemainingOnCancel(t *testing.T) {
	q := New(zap.NewNop(), 4)
	q.Enqueue(model.Alert{ID: "a1"})
	q.Enqueue(model.Alert{ID: "a2"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var got []string
	q.Run(ctx, func(_ context.Context, a model.Alert) { got = append(got, a.ID) })

	if len(got) != 2 {
		t.Fatalf("expected Run to drain the remaining backlog after cancellation, got %v", got)
	}
}
