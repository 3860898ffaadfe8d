package transport

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter is a token bucket per host, so one slow site cannot starve another.
type HostLimiter struct {
	requests int
	window   time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHostLimiter returns nil (no limiting) when requests or window is not positive.
func NewHostLimiter(requests int, window time.Duration) *HostLimiter {
	if requests <= 0 || window <= 0 {
		return nil
	}
	return &HostLimiter{
		requests: requests,
		window:   window,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (h *HostLimiter) Wait(ctx context.Context, host string) error {
	if h == nil || host == "" {
		return nil
	}
	return h.limiterFor(strings.ToLower(host)).Wait(ctx)
}

func (h *HostLimiter) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if l, ok := h.limiters[host]; ok {
		return l
	}
	interval := h.window / time.Duration(h.requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	l := rate.NewLimiter(rate.Every(interval), h.requests)
	h.limiters[host] = l
	return l
}
