package rate

import (
	"context"
	"fmt"

	xrate "golang.org/x/time/rate"
)

// Limiter gates outbound API calls so we respect Drive per-user quotas.
type Limiter interface {
	Wait(ctx context.Context) error
}

// TokenBucket adapts golang.org/x/time/rate to the Limiter interface.
type TokenBucket struct {
	lim *xrate.Limiter
}

// NewTokenBucket returns a limiter that releases rps tokens per second,
// with a burst of rps. Values below 1 are treated as 1.
func NewTokenBucket(rps int) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	return &TokenBucket{lim: xrate.NewLimiter(xrate.Limit(rps), rps)}
}

// Wait blocks until a token is available or the context is canceled.
func (t *TokenBucket) Wait(ctx context.Context) error {
	if err := t.lim.Wait(ctx); err != nil {
		return fmt.Errorf("rate wait: %w", err)
	}
	return nil
}

var _ Limiter = (*TokenBucket)(nil)
