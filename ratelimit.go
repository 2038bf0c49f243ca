package main

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// apiRequestsPerSecond is the admission budget for the shared platform host.
// Tenant subdomains are not limited.
const apiRequestsPerSecond = 5

// HostLimiter admission-controls calls to the shared platform host with a
// token bucket. Callers are delayed in proportion to the deficit, never
// dropped.
type HostLimiter struct {
	limiter *rate.Limiter
}

func NewHostLimiter(perSec int) *HostLimiter {
	return &HostLimiter{limiter: rate.NewLimiter(rate.Limit(perSec), perSec)}
}

// Acquire blocks until the bucket releases a token or ctx is done.
func (l *HostLimiter) Acquire(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

var (
	sharedLimiter     *HostLimiter
	sharedLimiterOnce sync.Once
)

// SharedAPILimiter returns the process-wide limiter for the shared host.
// All clients in the process draw from the same bucket.
func SharedAPILimiter() *HostLimiter {
	sharedLimiterOnce.Do(func() {
		sharedLimiter = NewHostLimiter(apiRequestsPerSecond)
	})
	return sharedLimiter
}
