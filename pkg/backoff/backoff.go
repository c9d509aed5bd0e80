// Package backoff provides exponential backoff calculation.
package backoff

import (
	"math"
	"time"
)

// Policy describes an exponential backoff curve. Zero values use defaults.
type Policy struct {
	Initial time.Duration // default: 100ms
	Max     time.Duration // default: 5s
}

// Default is the policy used when callers pass a zero Policy.
var Default = Policy{
	Initial: 100 * time.Millisecond,
	Max:     5 * time.Second,
}

// Delay returns the wait before the given attempt.
// Attempt 1 returns Initial, attempt 2 returns Initial*2, and so on,
// capped at Max.
func (p Policy) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = Default.Initial
	}
	maxDelay := p.Max
	if maxDelay <= 0 {
		maxDelay = Default.Max
	}

	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(maxDelay) {
		return maxDelay
	}
	return time.Duration(d)
}
