// Package limiters holds request-shaping policies used by the engine.
//
// The lockout policy is a pure function over state the caller already has.
// It never talks to storage itself: the user record carries the failure
// counter and timestamp, and the engine persists updates through its own
// store. This keeps lockout decisions deterministic and trivially testable.
package limiters

import "time"

// LockoutPolicy decides whether an account is temporarily locked based on
// its recent failed-login history.
//
// The rule: once MaxAttempts consecutive failures have accumulated, logins
// are rejected until Window has elapsed since the most recent failure. A
// failure after the window restarts the count at one rather than extending
// the lock, and any successful login clears it entirely (both handled by
// the caller via the counter it persists).
type LockoutPolicy struct {
	MaxAttempts int
	Window      time.Duration
}

// Check reports whether the account is locked right now, and if so for how
// much longer. A zero lastFailed time means no failure was ever recorded.
func (p LockoutPolicy) Check(failedAttempts int, lastFailed time.Time, now time.Time) (locked bool, retryAfter time.Duration) {
	if p.MaxAttempts <= 0 || p.Window <= 0 {
		return false, 0
	}
	if failedAttempts < p.MaxAttempts || lastFailed.IsZero() {
		return false, 0
	}

	unlockAt := lastFailed.Add(p.Window)
	if !now.Before(unlockAt) {
		return false, 0
	}
	return true, unlockAt.Sub(now)
}

// Stale reports whether a previously recorded failure streak is old enough
// that the next failure should restart the count instead of extending it.
func (p LockoutPolicy) Stale(lastFailed time.Time, now time.Time) bool {
	if lastFailed.IsZero() {
		return true
	}
	return now.Sub(lastFailed) >= p.Window
}
