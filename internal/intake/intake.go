// Package intake implements the Alertmanager webhook ingestion pipeline
// (C8): dedup by fingerprint, occurrence counting, and handing evaluation
// off to the worker pool rather than running it inline in the HTTP handler.
package intake

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// WebhookAlert is one alert entry from an Alertmanager webhook payload.
type WebhookAlert struct {
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels"`
	Annotations map[string]string `json:"annotations"`
	Fingerprint string            `json:"fingerprint,omitempty"`
}

// WebhookPayload is the part of the Alertmanager webhook body intake reads;
// the receiver ignores the body's other fields.
type WebhookPayload struct {
	Alerts []WebhookAlert `json:"alerts"`
}

// Store is the subset of store.Store intake needs.
type Store interface {
	UpsertAlert(ctx context.Context, a model.Alert) (model.Alert, error)
	ResolveAlert(ctx context.Context, id string) error
}

// EvaluateFunc hands an upserted alert off to asynchronous evaluation
// (rules + trigger matching). In production this is queue.Queue.Enqueue:
// it only ever pushes onto a bounded channel, never evaluates inline.
type EvaluateFunc func(alert model.Alert)

// Pipeline serializes processing per fingerprint with a striped keyed
// mutex, the same pattern the teacher uses to guard its nonce map.
type Pipeline struct {
	store    Store
	evaluate EvaluateFunc

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPipeline(store Store, evaluate EvaluateFunc) *Pipeline {
	return &Pipeline{store: store, evaluate: evaluate, locks: make(map[string]*sync.Mutex)}
}

// Ingest upserts every alert in payload and schedules evaluation for each
// one that is still firing, returning the resulting alert ids.
func (p *Pipeline) Ingest(ctx context.Context, payload WebhookPayload) ([]string, error) {
	ids := make([]string, 0, len(payload.Alerts))
	for _, wa := range payload.Alerts {
		id, err := p.ingestOne(ctx, wa)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (p *Pipeline) ingestOne(ctx context.Context, wa WebhookAlert) (string, error) {
	fingerprint := wa.Fingerprint
	if fingerprint == "" {
		fingerprint = Fingerprint(wa.Labels)
	}

	lock := p.lockFor(fingerprint)
	lock.Lock()
	defer lock.Unlock()

	status := model.AlertStatusFiring
	if wa.Status == "resolved" {
		status = model.AlertStatusResolved
	}

	alert := model.Alert{
		ID:          uuid.NewString(),
		Fingerprint: fingerprint,
		Name:        wa.Labels["alertname"],
		Severity:    wa.Labels["severity"],
		Status:      status,
		Labels:      wa.Labels,
		Annotations: wa.Annotations,
		ServerID:    wa.Labels["hostname"],
	}

	upserted, err := p.store.UpsertAlert(ctx, alert)
	if err != nil {
		return "", apierror.Wrap(apierror.Internal, "upsert alert", err)
	}

	if status == model.AlertStatusResolved {
		_ = p.store.ResolveAlert(ctx, upserted.ID)
		return upserted.ID, nil
	}

	if p.evaluate != nil {
		p.evaluate(upserted)
	}
	return upserted.ID, nil
}

func (p *Pipeline) lockFor(fingerprint string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[fingerprint]
	if !ok {
		l = &sync.Mutex{}
		p.locks[fingerprint] = l
	}
	return l
}

// Fingerprint derives a stable fallback fingerprint from an alert's labels
// when Alertmanager doesn't supply one, hashing the canonical
// (sorted-key) JSON encoding of the label set.
func Fingerprint(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]byte, 0, 256)
	ordered = append(ordered, '{')
	for i, k := range keys {
		if i > 0 {
			ordered = append(ordered, ',')
		}
		kj, _ := json.Marshal(k)
		vj, _ := json.Marshal(labels[k])
		ordered = append(ordered, kj...)
		ordered = append(ordered, ':')
		ordered = append(ordered, vj...)
	}
	ordered = append(ordered, '}')

	sum := sha256.Sum256(ordered)
	return fmt.Sprintf("%x", sum)
}
