// Package security implements the Security Gateway (C3): rate limiting,
// input sanitisation, and output filtering applied in order on every tool
// call, per spec.md §4.3.
//
// Rate limiting here is the fixed-window counter spec.md §4.3 describes
// literally (windowStart/count/blockedTill per (sessionId,toolName)); the
// mutex-guarded bucket-map shape is grounded on the teacher's
// features/model/middleware.AdaptiveRateLimiter, which instead smooths
// admission with a golang.org/x/time/rate token bucket — that primitive is
// reused verbatim at the provider-throttling layer (internal/modelprovider)
// where smoothing, not an exact per-window cap, is the actual requirement.
package security

import (
	"fmt"
	"sync"
	"time"

	"github.com/codeagent/runtime/internal/result"
)

type (
	// Policy configures one rate-limit category.
	Policy struct {
		WindowMs        int64
		MaxRequests     int
		BurstLimit      int
		BlockDurationMs int64
	}

	bucketState struct {
		windowStart time.Time
		count       int
		blockedTill time.Time
	}

	// RateLimiter enforces per-(sessionId,toolName) policies keyed by
	// category (default/system/file/...).
	RateLimiter struct {
		mu       sync.Mutex
		policies map[string]Policy
		buckets  map[string]*bucketState
		now      func() time.Time
	}
)

// DefaultPolicies returns the three built-in categories named in spec.md §4.3.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"default": {WindowMs: 60_000, MaxRequests: 60, BurstLimit: 10, BlockDurationMs: 30_000},
		"system":  {WindowMs: 60_000, MaxRequests: 20, BurstLimit: 2, BlockDurationMs: 60_000},
		"file":    {WindowMs: 60_000, MaxRequests: 30, BurstLimit: 5, BlockDurationMs: 30_000},
	}
}

// NewRateLimiter constructs a RateLimiter over the given per-category
// policies.
func NewRateLimiter(policies map[string]Policy) *RateLimiter {
	return &RateLimiter{
		policies: policies,
		buckets:  map[string]*bucketState{},
		now:      time.Now,
	}
}

func key(sessionID, toolName string) string {
	return sessionID + "\x00" + toolName
}

// SetClock overrides the limiter's time source; exported for tests that need
// deterministic window/block behaviour without sleeping.
func SetClock(l *RateLimiter, now func() time.Time) {
	l.now = now
}

// Allow consumes one token for (sessionID, toolName) under the named
// category policy. It returns RATE_LIMIT_BLOCKED while a prior violation's
// block window is active, or RATE_LIMIT_EXCEEDED once MaxRequests is
// exceeded within WindowMs (which also opens a new block window). Windows
// reset when now−windowStart ≥ WindowMs, matching spec.md §4.3 exactly.
func (l *RateLimiter) Allow(sessionID, toolName, category string) error {
	policy, ok := l.policies[category]
	if !ok {
		policy = l.policies["default"]
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key(sessionID, toolName)
	b, ok := l.buckets[k]
	if !ok {
		b = &bucketState{windowStart: now}
		l.buckets[k] = b
	}

	if !b.blockedTill.IsZero() && now.Before(b.blockedTill) {
		remaining := b.blockedTill.Sub(now)
		return result.New(result.CategoryBusiness, result.CodeRateLimitBlocked,
			fmt.Sprintf("rate limit blocked for %s", remaining)).
			WithContext("remainingMs", remaining.Milliseconds())
	}

	if now.Sub(b.windowStart) >= time.Duration(policy.WindowMs)*time.Millisecond {
		b.windowStart = now
		b.count = 0
	}

	if b.count >= policy.MaxRequests {
		b.blockedTill = now.Add(time.Duration(policy.BlockDurationMs) * time.Millisecond)
		return result.New(result.CategoryBusiness, result.CodeRateLimitExceed,
			fmt.Sprintf("rate limit exceeded for tool %q", toolName))
	}

	b.count++
	return nil
}

// Remaining reports how many more calls (sessionID, toolName) may make in
// the current window, for diagnostics and tests.
func (l *RateLimiter) Remaining(sessionID, toolName, category string) int {
	policy, ok := l.policies[category]
	if !ok {
		policy = l.policies["default"]
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key(sessionID, toolName)]
	if !ok {
		return policy.MaxRequests
	}
	if remaining := policy.MaxRequests - b.count; remaining > 0 {
		return remaining
	}
	return 0
}
