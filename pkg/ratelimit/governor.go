// Package ratelimit implements the API Rate Governor: a token-bucket rate
// limiter paired with a concurrency cap, shared by every outbound Okta API
// call the Sandbox Proxy mediates, across all processes on the instance.
package ratelimit

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// ErrMaxConcurrentCalls is returned by TryAcquire when the concurrency cap
// is already saturated.
var ErrMaxConcurrentCalls = errors.New("ratelimit: max concurrent API calls reached")

// Governor bounds outbound Okta API traffic to a requests-per-second budget
// and a maximum number of concurrent in-flight calls. cmd/oktareact builds
// one Governor for the whole service and hands it to the shared Sandbox
// Proxy, so every process on the instance draws from the same budget and
// cap; nothing here keeps a separate budget per process. The Proxy calls
// Acquire before each mediated Okta call and invokes the returned release
// func when that call completes.
type Governor struct {
	limiter *rate.Limiter
	slots   chan struct{}
	active  int32
}

// NewGovernor builds a Governor from the Limits config's
// api_requests_per_second and api_concurrent_limit values.
func NewGovernor(requestsPerSecond float64, maxConcurrent int) *Governor {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	burst := int(requestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Governor{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		slots:   make(chan struct{}, maxConcurrent),
	}
}

// Acquire blocks until both a rate-limit token and a concurrency slot are
// available, or ctx is cancelled. The returned release func MUST be called
// exactly once when the caller's API call completes.
func (g *Governor) Acquire(ctx context.Context) (release func(), err error) {
	select {
	case g.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := g.limiter.Wait(ctx); err != nil {
		<-g.slots
		return nil, err
	}

	atomic.AddInt32(&g.active, 1)
	released := false
	return func() {
		if released {
			return
		}
		released = true
		atomic.AddInt32(&g.active, -1)
		<-g.slots
	}, nil
}

// TryAcquire attempts a non-blocking reservation: instead of waiting, it
// fails at once with an error wrapping ErrMaxConcurrentCalls when no
// concurrency slot or no rate-limit token is free.
func (g *Governor) TryAcquire() (release func(), err error) {
	select {
	case g.slots <- struct{}{}:
	default:
		return nil, ErrMaxConcurrentCalls
	}

	if !g.limiter.Allow() {
		<-g.slots
		return nil, errors.Join(ErrMaxConcurrentCalls, errors.New("request budget exhausted"))
	}

	atomic.AddInt32(&g.active, 1)
	released := false
	return func() {
		if released {
			return
		}
		released = true
		atomic.AddInt32(&g.active, -1)
		<-g.slots
	}, nil
}

// ActiveCalls returns the current number of in-flight API calls, used for
// status reporting.
func (g *Governor) ActiveCalls() int {
	return int(atomic.LoadInt32(&g.active))
}
