package oracle

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// QueryThrottle bounds how fast oracles may hit the device transport.
// Burst floods from a misbehaving oracle would distort the very state
// being observed.
type QueryThrottle struct {
	limiter *rate.Limiter
}

// NewQueryThrottle allows qps sustained queries with the given burst.
func NewQueryThrottle(qps float64, burst int) *QueryThrottle {
	if burst < 1 {
		burst = 1
	}
	return &QueryThrottle{limiter: rate.NewLimiter(rate.Limit(qps), burst)}
}

// Wait blocks until a query slot is free or ctx is done. A nil
// throttle never blocks.
func (t *QueryThrottle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return nil
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("oracle: query throttle: %w", err)
	}
	return nil
}
