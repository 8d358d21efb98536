// Package ratelimit throttles outbound requests per external host.
package ratelimit

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter grants permits at a fixed rate. Waiters are served in the order
// they called Acquire, since each call reserves the next slot under the
// underlying limiter's lock.
type Limiter struct {
	lim *rate.Limiter
}

// New allows requests per interval with the given burst. A non-positive
// request count disables limiting.
func New(requests int, interval time.Duration, burst int) *Limiter {
	if requests <= 0 || interval <= 0 {
		return &Limiter{lim: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Every(interval/time.Duration(requests)), burst)}
}

// Acquire blocks until a permit is available. It only returns an error
// when ctx ends first.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.lim.Wait(ctx)
}

// Config describes the limit applied to every host in a Registry.
type Config struct {
	Requests int
	Interval time.Duration
	Burst    int
}

// Registry hands out one Limiter per host so that sessions hitting the same
// site share a budget while different sites do not block each other.
type Registry struct {
	cfg      Config
	mu       sync.RWMutex
	limiters map[string]*Limiter
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{cfg: cfg, limiters: make(map[string]*Limiter)}
}

// For returns the limiter for the host of rawURL.
func (r *Registry) For(rawURL string) *Limiter {
	return r.ForHost(hostOf(rawURL))
}

func (r *Registry) ForHost(host string) *Limiter {
	r.mu.RLock()
	if l, ok := r.limiters[host]; ok {
		r.mu.RUnlock()
		return l
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[host]; ok {
		return l
	}
	l := New(r.cfg.Requests, r.cfg.Interval, r.cfg.Burst)
	r.limiters[host] = l
	return l
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
