package limiters

import "time"

const (
	// DefaultLockoutThreshold is the failed-attempt count that triggers a lock.
	DefaultLockoutThreshold = 5
	// DefaultLockoutDuration is how long a triggered lock lasts.
	DefaultLockoutDuration = 30 * time.Minute
)

// LockoutConfig holds configuration for automatic account lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// LockoutPolicy decides when repeated credential failures lock an account
// and whether an existing lock is still in force.
type LockoutPolicy struct {
	config LockoutConfig
}

// NewLockoutPolicy applies defaults for non-positive fields.
func NewLockoutPolicy(cfg LockoutConfig) *LockoutPolicy {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultLockoutThreshold
	}
	if cfg.Duration <= 0 {
		cfg.Duration = DefaultLockoutDuration
	}
	return &LockoutPolicy{config: cfg}
}

func (p *LockoutPolicy) Threshold() int {
	return p.config.Threshold
}

func (p *LockoutPolicy) Duration() time.Duration {
	return p.config.Duration
}

// IsLocked reports whether lockedUntil is strictly after now. An elapsed
// lock is treated as released without any write.
func (p *LockoutPolicy) IsLocked(lockedUntil *time.Time, now time.Time) bool {
	return lockedUntil != nil && lockedUntil.After(now)
}

// Evaluate inspects the counter value returned by an atomic increment.
// It returns true and the lock expiry when the threshold has been reached.
func (p *LockoutPolicy) Evaluate(failedAttempts int, now time.Time) (bool, time.Time) {
	if failedAttempts < p.config.Threshold {
		return false, time.Time{}
	}
	return true, now.Add(p.config.Duration)
}
