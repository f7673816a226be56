package safety

import (
	"context"
	"testing"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/internal/cache"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	r := NewRateLimiter(cache.NewMemCounter())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.Allow(ctx, "rb-1", "srv-1", 3, 60); err != nil {
			t.Fatalf("Allow() call %d: %v", i+1, err)
		}
	}
}

func TestRateLimiterBlocksOverLimit(t *testing.T) {
	r := NewRateLimiter(cache.NewMemCounter())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := r.Allow(ctx, "rb-1", "srv-1", 3, 60); err != nil {
			t.Fatalf("Allow() call %d: %v", i+1, err)
		}
	}
	err := r.Allow(ctx, "rb-1", "srv-1", 3, 60)
	if err == nil {
		t.Fatal("expected the 4th call to be rate limited")
	}
	if apierror.KindOf(err) != apierror.RateLimited {
		t.Errorf("KindOf(err) = %v, want RateLimited", apierror.KindOf(err))
	}
}

func TestRateLimiterIsPerRunbookAndServer(t *testing.T) {
	r := NewRateLimiter(cache.NewMemCounter())
	ctx := context.Background()

	if err := r.Allow(ctx, "rb-1", "srv-1", 1, 60); err != nil {
		t.Fatalf("Allow(rb-1, srv-1): %v", err)
	}
	if err := r.Allow(ctx, "rb-1", "srv-2", 1, 60); err != nil {
		t.Fatalf("Allow(rb-1, srv-2) should be a distinct counter: %v", err)
	}
	if err := r.Allow(ctx, "rb-2", "srv-1", 1, 60); err != nil {
		t.Fatalf("Allow(rb-2, srv-1) should be a distinct counter: %v", err)
	}
}

func TestRateLimiterZeroLimitMeansUnbounded(t *testing.T) {
	r := NewRateLimiter(cache.NewMemCounter())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := r.Allow(ctx, "rb-1", "srv-1", 0, 60); err != nil {
			t.Fatalf("Allow() with limit=0 should never block, call %d: %v", i+1, err)
		}
	}
}
