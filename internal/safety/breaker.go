// Package safety implements the four gates an execution must clear before
// it runs: circuit breaker, rate limiter, blackout window, and approval.
package safety

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// BreakerStore persists circuit breaker state so it survives a restart and
// can be inspected/overridden through the API.
type BreakerStore interface {
	GetBreaker(ctx context.Context, scope, scopeID string) (*model.CircuitBreaker, error)
	UpsertBreaker(ctx context.Context, cb model.CircuitBreaker) error
}

// BreakerManager lazily builds one sony/gobreaker.CircuitBreaker per
// (scope, scope_id) and mirrors every state change back to BreakerStore.
type BreakerManager struct {
	store BreakerStore
	log   *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewBreakerManager(store BreakerStore, log *zap.Logger) *BreakerManager {
	return &BreakerManager{store: store, log: log, breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func breakerKey(scope, scopeID string) string { return scope + ":" + scopeID }

// Execute runs fn through the named breaker, honoring a persisted
// manually_opened override that gobreaker itself has no concept of: when
// set, the breaker never lets a probe through regardless of its internal
// half-open/closed state.
func (m *BreakerManager) Execute(ctx context.Context, scope, scopeID string, failureThreshold, failureWindowMinutes, openDurationMinutes int, fn func() error) error {
	persisted, err := m.store.GetBreaker(ctx, scope, scopeID)
	if err == nil && persisted != nil && persisted.ManuallyOpened {
		return apierror.New(apierror.CircuitOpen, fmt.Sprintf("breaker %s/%s manually opened", scope, scopeID))
	}

	cb := m.getOrCreate(scope, scopeID, failureThreshold, failureWindowMinutes, openDurationMinutes)
	_, err = cb.Execute(func() (any, error) { return nil, fn() })
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return apierror.Wrap(apierror.CircuitOpen, fmt.Sprintf("breaker %s/%s is open", scope, scopeID), err)
	}
	return err
}

func (m *BreakerManager) getOrCreate(scope, scopeID string, failureThreshold, failureWindowMinutes, openDurationMinutes int) *gobreaker.CircuitBreaker {
	key := breakerKey(scope, scopeID)

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[key]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    time.Duration(failureWindowMinutes) * time.Minute,
		Timeout:     time.Duration(openDurationMinutes) * time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failureThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.onStateChange(scope, scopeID, to)
		},
	}
	cb := gobreaker.NewCircuitBreaker(settings)
	m.breakers[key] = cb
	return cb
}

func (m *BreakerManager) onStateChange(scope, scopeID string, to gobreaker.State) {
	state := model.BreakerClosed
	switch to {
	case gobreaker.StateOpen:
		state = model.BreakerOpen
	case gobreaker.StateHalfOpen:
		state = model.BreakerHalfOpen
	}
	now := time.Now()
	cb := model.CircuitBreaker{Scope: scope, ScopeID: scopeID, State: state}
	if state == model.BreakerOpen {
		cb.OpenedAt = &now
	}
	if err := m.store.UpsertBreaker(context.Background(), cb); err != nil {
		m.log.Warn("failed to persist breaker state change", zap.String("scope", scope), zap.String("scope_id", scopeID), zap.Error(err))
	}
}

// ManualOpen forces a breaker open regardless of its failure count, until
// ManualReset is called.
func (m *BreakerManager) ManualOpen(ctx context.Context, scope, scopeID string) error {
	now := time.Now()
	return m.store.UpsertBreaker(ctx, model.CircuitBreaker{
		Scope: scope, ScopeID: scopeID, State: model.BreakerOpen, ManuallyOpened: true, OpenedAt: &now,
	})
}

// ManualReset clears a manual override and the underlying breaker's state.
func (m *BreakerManager) ManualReset(ctx context.Context, scope, scopeID string) error {
	m.mu.Lock()
	delete(m.breakers, breakerKey(scope, scopeID))
	m.mu.Unlock()
	return m.store.UpsertBreaker(ctx, model.CircuitBreaker{Scope: scope, ScopeID: scopeID, State: model.BreakerClosed})
}
