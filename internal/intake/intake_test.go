package intake

import (
	"context"
	"sync"
	"testing"

	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

func TestFingerprintIsOrderIndependent(t *testing.T) {
	a := Fingerprint(map[string]string{"alertname": "DiskFull", "hostname": "db-01"})
	b := Fingerprint(map[string]string{"hostname": "db-01", "alertname": "DiskFull"})
	if a != b {
		t.Errorf("Fingerprint should not depend on label iteration order: %q != %q", a, b)
	}
}

func TestFingerprintDiffersOnDifferentLabels(t *testing.T) {
	a := Fingerprint(map[string]string{"alertname": "DiskFull", "hostname": "db-01"})
	b := Fingerprint(map[string]string{"alertname": "DiskFull", "hostname": "db-02"})
	if a == b {
		t.Error("expected different label sets to hash differently")
	}
}

type fakeStore struct {
	mu       sync.Mutex
	upserts  int
	resolves int
}

func (f *fakeStore) UpsertAlert(ctx context.Context, a model.Alert) (model.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	a.ID = "alert-1"
	return a, nil
}

func (f *fakeStore) ResolveAlert(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolves++
	return nil
}

func TestIngestFiringAlertTriggersEvaluate(t *testing.T) {
	store := &fakeStore{}
	var evaluated []model.Alert
	p := NewPipeline(store, func(a model.Alert) {
		evaluated = append(evaluated, a)
	})

	ids, err := p.Ingest(context.Background(), WebhookPayload{
		Alerts: []WebhookAlert{
			{Status: "firing", Labels: map[string]string{"alertname": "DiskFull", "hostname": "db-01"}},
		},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(ids) != 1 {
		t.Fatalf("expected 1 id, got %d", len(ids))
	}
	if store.upserts != 1 {
		t.Errorf("expected 1 upsert, got %d", store.upserts)
	}
	if len(evaluated) != 1 {
		t.Errorf("expected evaluate to be called once, got %d", len(evaluated))
	}
}

func TestIngestResolvedAlertSkipsEvaluate(t *testing.T) {
	store := &fakeStore{}
	evaluateCalled := false
	p := NewPipeline(store, func(a model.Alert) {
		evaluateCalled = true
	})

	_, err := p.Ingest(context.Background(), WebhookPayload{
		Alerts: []WebhookAlert{
			{Status: "resolved", Labels: map[string]string{"alertname": "DiskFull"}},
		},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if evaluateCalled {
		t.Error("resolved alerts should not be evaluated")
	}
	if store.resolves != 1 {
		t.Errorf("expected 1 resolve, got %d", store.resolves)
	}
}

func TestIngestUsesExplicitFingerprintWhenProvided(t *testing.T) {
	store := &fakeStore{}
	var got model.Alert
	p := NewPipeline(store, func(a model.Alert) { got = a })

	_, err := p.Ingest(context.Background(), WebhookPayload{
		Alerts: []WebhookAlert{
			{Status: "firing", Fingerprint: "explicit-fp", Labels: map[string]string{"alertname": "X"}},
		},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if got.Fingerprint != "explicit-fp" {
		t.Errorf("Fingerprint = %q, want %q", got.Fingerprint, "explicit-fp")
	}
}
