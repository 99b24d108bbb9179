package supervisor

import (
	"math"
	"math/rand/v2"
	"time"

	"gortlbridge/shared"
)

// Policy is a bounded exponential restart policy.
type Policy struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int // consecutive failures before a radio is parked; 0 = never
	Jitter      bool
}

// NewPolicy fills unset fields with the defaults: 5s doubling up to 5m.
func NewPolicy(cfg shared.BackoffConfig) Policy {
	p := Policy{
		Initial:     cfg.Initial,
		Max:         cfg.Max,
		Multiplier:  cfg.Multiplier,
		MaxAttempts: cfg.MaxAttempts,
		Jitter:      cfg.Jitter,
	}
	if p.Initial <= 0 {
		p.Initial = 5 * time.Second
	}
	if p.Max <= 0 {
		p.Max = 5 * time.Minute
	}
	if p.Max < p.Initial {
		p.Max = p.Initial
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2.0
	}
	// Prevent overflow with extremely large multipliers
	if p.Multiplier > 1000 {
		p.Multiplier = 1000
	}
	return p
}

// Delay returns how long to wait before the next launch after the given
// number of consecutive failures (1 for the first).
func (p Policy) Delay(failures int) time.Duration {
	if failures < 1 {
		failures = 1
	}
	d := float64(p.Initial) * math.Pow(p.Multiplier, float64(failures-1))
	if d > float64(p.Max) || math.IsInf(d, 0) {
		d = float64(p.Max)
	}
	delay := time.Duration(d)
	if p.Jitter && delay > 0 {
		// up to +25%, still capped
		delay += time.Duration(rand.Int64N(int64(delay)/4 + 1))
		delay = min(delay, p.Max)
	}
	return delay
}

// Exhausted reports whether a radio with this many consecutive failures
// should be parked instead of restarted.
func (p Policy) Exhausted(failures int) bool {
	return p.MaxAttempts > 0 && failures >= p.MaxAttempts
}
