package safety

import (
	"context"
	"fmt"

	"github.com/maftabmirza/remediation-engine-sub001/internal/apierror"
	"github.com/maftabmirza/remediation-engine-sub001/internal/cache"
)

// RateLimiter enforces a Runbook's rate_limit_count within
// rate_limit_window_seconds, per (runbook, server), using the shared cache
// counter (Redis when configured, in-process otherwise) so a burst across
// worker goroutines is checked without a database round trip per call.
type RateLimiter struct {
	counter cache.Counter
}

func NewRateLimiter(counter cache.Counter) *RateLimiter {
	return &RateLimiter{counter: counter}
}

// Allow increments the counter for (runbookID, serverID) and returns
// RateLimited if the new count exceeds limit within windowSeconds.
func (r *RateLimiter) Allow(ctx context.Context, runbookID, serverID string, limit, windowSeconds int) error {
	if limit <= 0 {
		return nil
	}
	key := fmt.Sprintf("ratelimit:%s:%s", runbookID, serverID)
	n, err := r.counter.Incr(ctx, key, secondsToDuration(windowSeconds))
	if err != nil {
		return apierror.Wrap(apierror.Internal, "rate limiter counter", err)
	}
	if n > int64(limit) {
		return apierror.New(apierror.RateLimited, fmt.Sprintf("runbook %s exceeded %d executions/%ds on server %s", runbookID, limit, windowSeconds, serverID))
	}
	return nil
}
