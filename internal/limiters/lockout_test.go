package limiters

import (
	"testing"
	"time"
)

func TestLockoutPolicyDefaults(t *testing.T) {
	p := NewLockoutPolicy(LockoutConfig{})
	if p.Threshold() != 5 {
		t.Fatalf("expected default threshold 5, got %d", p.Threshold())
	}
	if p.Duration() != 30*time.Minute {
		t.Fatalf("expected default duration 30m, got %v", p.Duration())
	}
}

func TestLockoutPolicyEvaluate(t *testing.T) {
	p := NewLockoutPolicy(LockoutConfig{Threshold: 5, Duration: 30 * time.Minute})
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for n := 1; n < 5; n++ {
		if lock, _ := p.Evaluate(n, now); lock {
			t.Fatalf("count %d must not lock", n)
		}
	}
	for _, n := range []int{5, 6, 100} {
		lock, until := p.Evaluate(n, now)
		if !lock {
			t.Fatalf("count %d must lock", n)
		}
		if !until.Equal(now.Add(30 * time.Minute)) {
			t.Fatalf("unexpected lock expiry %v", until)
		}
	}
}

func TestLockoutPolicyIsLocked(t *testing.T) {
	p := NewLockoutPolicy(LockoutConfig{})
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Second)

	if p.IsLocked(nil, now) {
		t.Fatal("nil lockedUntil must not be locked")
	}
	if p.IsLocked(&past, now) {
		t.Fatal("elapsed lock must be released")
	}
	if p.IsLocked(&now, now) {
		t.Fatal("lock ending exactly now must be released")
	}
	if !p.IsLocked(&future, now) {
		t.Fatal("future lock must be in force")
	}
}
