// Package ratelimit decorates a types.AgentBackend with an AIMD-style
// adaptive token bucket, estimating the token cost of each request and
// adjusting its effective tokens-per-minute budget in response to
// provider rate-limit signals.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"

	"github.com/meshwave/agentwave/types"
)

// AdaptiveRateLimiter applies a tokens-per-minute budget on top of a
// types.AgentBackend. It blocks callers until capacity is available and
// halves its budget whenever the wrapped backend reports a transient
// (rate-limit-shaped) error, recovering gradually on success.
//
// A single instance is process-local; construct one per process and wrap
// every backend that shares the same provider quota with Wrap.
type AdaptiveRateLimiter struct {
	mu sync.Mutex

	limiter *rate.Limiter

	currentTPM float64
	minTPM     float64
	maxTPM     float64

	recoveryRate float64
}

// New constructs an AdaptiveRateLimiter with an initial tokens-per-minute
// budget and an upper bound. When initialTPM is zero or negative, it
// defaults to a conservative 60000 TPM. When maxTPM is zero or less than
// initialTPM, it is clamped to initialTPM.
func New(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
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

// limitedBackend wraps a types.AgentBackend with limiter enforcement.
type limitedBackend struct {
	next    types.AgentBackend
	limiter *AdaptiveRateLimiter
}

// Wrap returns a types.AgentBackend that enforces l's budget before
// delegating to next.
func (l *AdaptiveRateLimiter) Wrap(next types.AgentBackend) types.AgentBackend {
	if next == nil {
		return nil
	}
	return &limitedBackend{next: next, limiter: l}
}

// Complete implements types.AgentBackend.
func (c *limitedBackend) Complete(ctx context.Context, req types.CompleteRequest) (types.CompleteResult, error) {
	tokens := estimateTokens(req)
	if err := c.limiter.limiter.WaitN(ctx, tokens); err != nil {
		return types.CompleteResult{}, &types.CompleteError{Transient: false, Message: err.Error()}
	}
	res, err := c.next.Complete(ctx, req)
	c.limiter.observe(err)
	return res, err
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	var cerr *types.CompleteError
	if ok := asCompleteError(err, &cerr); ok && cerr.Transient {
		l.backoff()
	}
}

func asCompleteError(err error, target **types.CompleteError) bool {
	ce, ok := err.(*types.CompleteError)
	if !ok {
		return false
	}
	*target = ce
	return true
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
// budget, for diagnostics.
func (l *AdaptiveRateLimiter) CurrentTPM() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

// estimateTokens computes a cheap heuristic for the token cost of a
// request: roughly 1 token per 3 characters of system and user text, plus
// a fixed buffer for provider framing.
func estimateTokens(req types.CompleteRequest) int {
	charCount := len(req.System) + len(req.User)
	if charCount <= 0 {
		return 500
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
