// Package notify sends login and profile-update notification emails,
// gated by a per-user rolling-window throttle.
package notify

import (
	"sync"
	"time"
)

// Throttle defaults: at most 5 notification sends per user per hour.
const (
	DefaultRateLimit = 5
	DefaultWindow    = time.Hour
)

// Throttle caps notification sends per user over a trailing window. The
// send log lives in process memory only; a restart resets every budget.
type Throttle struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	history map[string][]time.Time
}

// ThrottleConfig holds configuration for the throttle.
type ThrottleConfig struct {
	Limit  int
	Window time.Duration
	Now    func() time.Time
}

// NewThrottle creates a throttle with the given limits.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultRateLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Throttle{
		limit:   cfg.Limit,
		window:  cfg.Window,
		now:     cfg.Now,
		history: make(map[string][]time.Time),
	}
}

// IsRateLimited reports whether userID has exhausted its send budget. A
// permitted check records the send immediately, so each call consumes one
// unit of quota: call it exactly once per send attempt. A slot stays
// consumed even if the send later fails.
func (t *Throttle) IsRateLimited(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	var recent []time.Time
	for _, sent := range t.history[userID] {
		if now.Sub(sent) < t.window {
			recent = append(recent, sent)
		}
	}

	if len(recent) >= t.limit {
		t.history[userID] = recent
		return true
	}

	t.history[userID] = append(recent, now)
	return false
}
