package apierror

import (
	"errors"
	"fmt"
	"testing"
)

func TestStatusKnownAndUnknownKinds(t *testing.T) {
	if got := Status(NotFound); got != 404 {
		t.Errorf("Status(NotFound) = %d, want 404", got)
	}
	if got := Status(CircuitOpen); got != 423 {
		t.Errorf("Status(CircuitOpen) = %d, want 423", got)
	}
	if got := Status(Kind("unknown-kind")); got != 500 {
		t.Errorf("Status(unknown) = %d, want 500 default", got)
	}
}

func TestNewAndWrapErrorString(t *testing.T) {
	plain := New(ValidationFailed, "name is required")
	if plain.Error() != "ValidationFailed: name is required" {
		t.Errorf("Error() = %q", plain.Error())
	}

	cause := errors.New("connection refused")
	wrapped := Wrap(Internal, "query failed", cause)
	if wrapped.Error() != "Internal: query failed: connection refused" {
		t.Errorf("Error() = %q", wrapped.Error())
	}
	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to see through Wrap to the cause")
	}
}

func TestKindOfUnwrapsChainedErrors(t *testing.T) {
	base := New(RateLimited, "too many executions")
	chained := fmt.Errorf("dispatch failed: %w", base)

	if got := KindOf(chained); got != RateLimited {
		t.Errorf("KindOf(chained) = %v, want RateLimited", got)
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("plain error")); got != Internal {
		t.Errorf("KindOf(plain) = %v, want Internal", got)
	}
}

func TestWithDetailsAttachesFields(t *testing.T) {
	err := New(ValidationFailed, "bad field").WithDetails(map[string]any{"field": "name"})
	if err.Details["field"] != "name" {
		t.Errorf("Details[field] = %v, want %q", err.Details["field"], "name")
	}
}
