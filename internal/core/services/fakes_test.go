package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JeanGrijp/quota-limiter/internal/core/domain"
)

var errBoom = fmt.Errorf("%w: connection refused", domain.ErrStoreUnavailable)

// fakeRemote é um contador remoto atômico em memória com injeção de falhas.
type fakeRemote struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration

	failIncrement bool
	failDecrement bool
	failGet       bool
	block         bool

	incrementCalls int
	decrementCalls int
	getCalls       int
	decrementCtxOK bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{counts: make(map[string]int64), ttls: make(map[string]time.Duration)}
}

func (f *fakeRemote) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	f.mu.Lock()
	f.incrementCalls++
	block, fail := f.block, f.failIncrement
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, ctx.Err())
	}
	if fail {
		return 0, errBoom
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	if _, ok := f.ttls[key]; !ok {
		f.ttls[key] = ttl
	}
	return f.counts[key], nil
}

func (f *fakeRemote) Decrement(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decrementCalls++
	f.decrementCtxOK = ctx.Err() == nil
	if f.failDecrement {
		return errBoom
	}
	f.counts[key]--
	return nil
}

func (f *fakeRemote) Get(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failGet {
		return 0, errBoom
	}
	return f.counts[key], nil
}

func (f *fakeRemote) set(fn func(f *fakeRemote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeRemote) snapshot() fakeRemote {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeRemote{
		incrementCalls: f.incrementCalls,
		decrementCalls: f.decrementCalls,
		getCalls:       f.getCalls,
		decrementCtxOK: f.decrementCtxOK,
	}
}

func (f *fakeRemote) count(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[key]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type decision struct {
	label   string
	allowed bool
	source  domain.CounterSource
}

type fakeRecorder struct {
	mu        sync.Mutex
	quota     []decision
	rateLimit []decision
	fallbacks []string
}

func (r *fakeRecorder) QuotaDecision(plan domain.Plan, allowed bool, source domain.CounterSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quota = append(r.quota, decision{string(plan), allowed, source})
}

func (r *fakeRecorder) RateLimitDecision(scope string, allowed bool, source domain.CounterSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rateLimit = append(r.rateLimit, decision{scope, allowed, source})
}

func (r *fakeRecorder) Fallback(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, op)
}
