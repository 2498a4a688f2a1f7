package platform

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limits is the per-platform request budget. MinDelay spaces calls out
// beyond what the token bucket enforces, jittered so bursts of workers
// never land in lockstep.
type Limits struct {
	PerMinute  int
	MinDelay   time.Duration
	MaxRetries int
}

var platformLimits = map[Platform]Limits{
	PlatformX:         {PerMinute: 50, MinDelay: 1200 * time.Millisecond, MaxRetries: 2},
	PlatformInstagram: {PerMinute: 30, MinDelay: 2500 * time.Millisecond, MaxRetries: 3},
	PlatformYouTube:   {PerMinute: 100, MinDelay: 500 * time.Millisecond, MaxRetries: 2},
	PlatformTikTok:    {PerMinute: 40, MinDelay: 1500 * time.Millisecond, MaxRetries: 2},
}

var defaultLimits = Limits{PerMinute: 60, MinDelay: time.Second, MaxRetries: 2}

func LimitsFor(p Platform) Limits {
	if l, ok := platformLimits[p]; ok {
		return l
	}
	return defaultLimits
}

var throttleMarkers = []string{"rate limit", "too many requests", "quota", "limit exceeded", "429"}

// IsThrottleMessage reports whether an error message reads like the
// remote side pushing back rather than a real failure.
func IsThrottleMessage(msg string) bool {
	msg = strings.ToLower(msg)
	for _, marker := range throttleMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Backoff returns the pause before retry number attempt: exponential
// with up to two seconds of jitter.
func Backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt)*time.Second + time.Duration(rand.Float64()*2*float64(time.Second))
}

// Gate throttles outbound page loads per platform. Limiters are built
// lazily so platforms never hit in a batch cost nothing.
type Gate struct {
	mu       sync.Mutex
	limiters map[Platform]*rate.Limiter

	limits  map[Platform]Limits
	backoff func(attempt int) time.Duration
}

func NewGate() *Gate {
	return &Gate{
		limiters: make(map[Platform]*rate.Limiter),
		limits:   platformLimits,
		backoff:  Backoff,
	}
}

// NewGateWithLimits builds a gate with custom per-platform limits.
// Platforms not listed fall back to the stock defaults.
func NewGateWithLimits(limits map[Platform]Limits) *Gate {
	g := NewGate()
	if len(limits) > 0 {
		g.limits = limits
	}
	return g
}

func (g *Gate) limitsFor(p Platform) Limits {
	if l, ok := g.limits[p]; ok {
		return l
	}
	return defaultLimits
}

// Limits reports the limits the gate enforces for a platform.
func (g *Gate) Limits(p Platform) Limits {
	return g.limitsFor(p)
}

func (g *Gate) limiter(p Platform) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	lim, ok := g.limiters[p]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(g.limitsFor(p).PerMinute)/60, 1)
		g.limiters[p] = lim
	}
	return lim
}

// Wait blocks until the platform's budget admits another request, then
// applies the jittered minimum delay. Cancellation cuts both phases
// short.
func (g *Gate) Wait(ctx context.Context, p Platform) error {
	if err := g.limiter(p).Wait(ctx); err != nil {
		return err
	}
	delay := time.Duration(float64(g.limitsFor(p).MinDelay) * (0.8 + 0.4*rand.Float64()))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn under the platform's budget, retrying with exponential
// backoff when the failure reads like throttling. Anything else
// returns on the first attempt.
func (g *Gate) Do(ctx context.Context, p Platform, fn func(context.Context) (*Metrics, error)) (*Metrics, error) {
	limits := g.limitsFor(p)
	var lastErr error
	for attempt := 0; attempt <= limits.MaxRetries; attempt++ {
		if err := g.Wait(ctx, p); err != nil {
			return nil, err
		}
		m, err := fn(ctx)
		if err == nil {
			return m, nil
		}
		lastErr = err
		if !IsThrottleMessage(err.Error()) || attempt == limits.MaxRetries {
			return nil, err
		}
		timer := time.NewTimer(g.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}
