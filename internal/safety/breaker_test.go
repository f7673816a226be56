package safety

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
	"go.uber.org/zap"
)

type fakeBreakerStore struct {
	mu       sync.Mutex
	breakers map[string]model.CircuitBreaker
}

func newFakeBreakerStore() *fakeBreakerStore {
	return &fakeBreakerStore{breakers: map[string]model.CircuitBreaker{}}
}

func (f *fakeBreakerStore) GetBreaker(ctx context.Context, scope, scopeID string) (*model.CircuitBreaker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cb, ok := f.breakers[breakerKey(scope, scopeID)]
	if !ok {
		return nil, nil
	}
	return &cb, nil
}

func (f *fakeBreakerStore) UpsertBreaker(ctx context.Context, cb model.CircuitBreaker) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.breakers[breakerKey(cb.Scope, cb.ScopeID)] = cb
	return nil
}

func TestBreakerManagerExecutePassesThroughOnSuccess(t *testing.T) {
	m := NewBreakerManager(newFakeBreakerStore(), zap.NewNop())
	called := false
	err := m.Execute(context.Background(), "runbook", "rb-1", 3, 5, 1, func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Error("expected fn to be called")
	}
}

func TestBreakerManagerOpensAfterConsecutiveFailures(t *testing.T) {
	store := newFakeBreakerStore()
	m := NewBreakerManager(store, zap.NewNop())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		err := m.Execute(context.Background(), "runbook", "rb-1", 3, 5, 10, func() error {
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("call %d: expected the underlying error to propagate, got %v", i+1, err)
		}
	}

	// The 4th call should find the breaker open rather than invoking fn.
	called := false
	err := m.Execute(context.Background(), "runbook", "rb-1", 3, 5, 10, func() error {
		called = true
		return nil
	})
	if called {
		t.Error("fn must not be called while the breaker is open")
	}
	if apierror.KindOf(err) != apierror.CircuitOpen {
		t.Errorf("KindOf(err) = %v, want CircuitOpen", apierror.KindOf(err))
	}

	cb, _ := store.GetBreaker(context.Background(), "runbook", "rb-1")
	if cb == nil || cb.State != model.BreakerOpen {
		t.Errorf("expected persisted breaker state to be open, got %+v", cb)
	}
}

func TestBreakerManagerManualOpenBlocksRegardlessOfFailureCount(t *testing.T) {
	store := newFakeBreakerStore()
	m := NewBreakerManager(store, zap.NewNop())

	if err := m.ManualOpen(context.Background(), "runbook", "rb-1"); err != nil {
		t.Fatalf("ManualOpen: %v", err)
	}

	called := false
	err := m.Execute(context.Background(), "runbook", "rb-1", 3, 5, 10, func() error {
		called = true
		return nil
	})
	if called {
		t.Error("fn must not be called while manually opened")
	}
	if apierror.KindOf(err) != apierror.CircuitOpen {
		t.Errorf("KindOf(err) = %v, want CircuitOpen", apierror.KindOf(err))
	}
}

func TestBreakerManagerManualResetClearsOverrideAndState(t *testing.T) {
	store := newFakeBreakerStore()
	m := NewBreakerManager(store, zap.NewNop())

	if err := m.ManualOpen(context.Background(), "runbook", "rb-1"); err != nil {
		t.Fatalf("ManualOpen: %v", err)
	}
	if err := m.ManualReset(context.Background(), "runbook", "rb-1"); err != nil {
		t.Fatalf("ManualReset: %v", err)
	}

	called := false
	err := m.Execute(context.Background(), "runbook", "rb-1", 3, 5, 10, func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute after reset: %v", err)
	}
	if !called {
		t.Error("expected fn to run after a manual reset")
	}
}

func TestBreakerManagerIsolatesDistinctScopes(t *testing.T) {
	store := newFakeBreakerStore()
	m := NewBreakerManager(store, zap.NewNop())
	boom := errors.New("boom")

	for i := 0; i < 3; i++ {
		_ = m.Execute(context.Background(), "runbook", "rb-1", 3, 5, 10, func() error { return boom })
	}

	// A different scope_id must have its own independent breaker.
	called := false
	err := m.Execute(context.Background(), "runbook", "rb-2", 3, 5, 10, func() error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute for an unrelated scope: %v", err)
	}
	if !called {
		t.Error("expected fn to run for an independent breaker scope")
	}
}
