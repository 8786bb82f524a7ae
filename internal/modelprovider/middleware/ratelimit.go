// Package middleware provides reusable modelprovider.Client middleware; the
// adaptive rate limiter is the only one. cmd/agent does not wrap its model
// client with it.
//
// Grounded on the teacher's features/model/middleware.AdaptiveRateLimiter:
// the same AIMD token-bucket shape over golang.org/x/time/rate, the same
// backoff-on-ErrRateLimited / probe-on-success observation, and the same
// estimateTokens heuristic (moved onto modelprovider.EstimateTokens, since
// this runtime's Request carries plain message strings, not the teacher's
// Parts union). The teacher's Pulse/rmap cluster-coordination path
// (NewAdaptiveRateLimiter/clusterMap/globalBackoff/globalProbe) is dropped:
// this runtime has no multi-process coordination dependency (see
// DESIGN.md, "Dropped teacher dependencies"), so the limiter here is
// always process-local, equivalent to the teacher's internal
// newAdaptiveRateLimiter path.
package middleware

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/codeagent/runtime/internal/modelprovider"
)

// AdaptiveRateLimiter applies an AIMD-style token bucket on top of a
// modelprovider.Client: it estimates the token cost of each request, blocks
// callers until capacity is available, and shrinks or grows its effective
// tokens-per-minute budget in response to provider rate-limit signals.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// NewAdaptiveRateLimiter constructs a limiter with an initial tokens-per-minute
// budget and an upper bound. When maxTPM is zero or below initialTPM it is
// clamped to initialTPM.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Middleware returns a modelprovider.Client decorator enforcing the adaptive
// tokens-per-minute limit for both Invoke and Stream calls.
func (l *AdaptiveRateLimiter) Middleware() func(modelprovider.Client) modelprovider.Client {
	return func(next modelprovider.Client) modelprovider.Client {
		if next == nil {
			return nil
		}
		return &limitedClient{next: next, limiter: l}
	}
}

type limitedClient struct {
	next    modelprovider.Client
	limiter *AdaptiveRateLimiter
}

func (c *limitedClient) Invoke(ctx context.Context, req modelprovider.Request) (modelprovider.Response, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return modelprovider.Response{}, err
	}
	resp, err := c.next.Invoke(ctx, req)
	c.limiter.observe(err)
	return resp, err
}

func (c *limitedClient) Stream(ctx context.Context, req modelprovider.Request) (modelprovider.Streamer, error) {
	if err := c.limiter.wait(ctx, req); err != nil {
		return nil, err
	}
	stream, err := c.next.Stream(ctx, req)
	c.limiter.observe(err)
	return stream, err
}

func (l *AdaptiveRateLimiter) wait(ctx context.Context, req modelprovider.Request) error {
	tokens := modelprovider.EstimateTokens(req)
	return l.limiter.WaitN(ctx, tokens)
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, modelprovider.ErrRateLimited) {
		l.backoff()
	}
}

func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// CurrentTPM reports the limiter's current effective tokens-per-minute
// budget, for diagnostics/health reporting.
func (l *AdaptiveRateLimiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}
