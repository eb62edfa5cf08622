package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/remindhub/messaging-scheduler/internal/scheduling"
)

// ContentLimiters holds one token bucket limiter per content type.
// Each limiter enforces a steady-state rate (e.g. 100 tokens/sec).
// Burst is set equal to the rate so no extra burst capacity is allowed
// beyond the configured per-second maximum.
type ContentLimiters struct {
	limiters map[scheduling.ContentType]*rate.Limiter
}

// New creates a ContentLimiters with ratePerSec tokens per second per
// content type.
func New(ratePerSec int) *ContentLimiters {
	r := rate.Limit(ratePerSec)
	burst := ratePerSec // burst == rate: prevents any "saved up" burst above the limit

	return &ContentLimiters{
		limiters: map[scheduling.ContentType]*rate.Limiter{
			scheduling.ContentSMS:    rate.NewLimiter(r, burst),
			scheduling.ContentEmail:  rate.NewLimiter(r, burst),
			scheduling.ContentCustom: rate.NewLimiter(r, burst),
		},
	}
}

// Wait blocks until the content type's limiter grants a token.
// Called by each worker immediately before handing a message to the gateway.
// Returns a non-nil error only if ctx is cancelled while waiting, or if the
// content type is unknown.
func (cl *ContentLimiters) Wait(ctx context.Context, ct scheduling.ContentType) error {
	limiter, ok := cl.limiters[ct]
	if !ok {
		return scheduling.ErrUnknownContentType
	}
	return limiter.Wait(ctx)
}
