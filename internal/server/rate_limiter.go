package server

import (
	"time"

	"golang.org/x/time/rate"
)

// newRateLimiter builds the per-connection limiter for cfg: Burst messages
// per RefillInterval, refilled evenly. It returns nil when limiting is
// disabled.
func newRateLimiter(cfg RateLimitConfig) *rate.Limiter {
	if cfg.Burst <= 0 {
		return nil
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Every(interval/time.Duration(cfg.Burst)), cfg.Burst)
}
