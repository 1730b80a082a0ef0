// Package resilience provides request rate limiting for the gateway.
package resilience

import (
	"sync"

	"golang.org/x/time/rate"
)

// RequestLimiter controls the inbound request rate.
type RequestLimiter interface {
	// Allow reports whether a request from the given host may proceed.
	Allow(host string) bool
}

// RequestLimiterConfig configures the request limiter.
type RequestLimiterConfig struct {
	// RequestsPerSecond is the sustained rate per bucket.
	RequestsPerSecond float64

	// Burst is the bucket size.
	Burst int

	// PerHost gives every client host its own bucket in addition to the
	// global one.
	PerHost bool
}

// DefaultRequestLimiterConfig returns default configuration. The gateway
// fronts a single kiosk, so the defaults are generous.
func DefaultRequestLimiterConfig() RequestLimiterConfig {
	return RequestLimiterConfig{
		RequestsPerSecond: 50,
		Burst:             100,
		PerHost:           true,
	}
}

// requestLimiter implements RequestLimiter.
type requestLimiter struct {
	config RequestLimiterConfig
	global *rate.Limiter
	hosts  map[string]*rate.Limiter
	mu     sync.Mutex
}

// NewRequestLimiter creates a new request limiter.
func NewRequestLimiter(config RequestLimiterConfig) RequestLimiter {
	return &requestLimiter{
		config: config,
		global: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		hosts:  make(map[string]*rate.Limiter),
	}
}

// Allow implements RequestLimiter.
func (rl *requestLimiter) Allow(host string) bool {
	if !rl.global.Allow() {
		return false
	}
	if !rl.config.PerHost {
		return true
	}
	return rl.hostLimiter(host).Allow()
}

func (rl *requestLimiter) hostLimiter(host string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, ok := rl.hosts[host]
	if !ok {
		l = rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)
		rl.hosts[host] = l
	}
	return l
}

// Unlimited returns a limiter that always allows.
func Unlimited() RequestLimiter {
	return unlimited{}
}

type unlimited struct{}

func (unlimited) Allow(string) bool { return true }
