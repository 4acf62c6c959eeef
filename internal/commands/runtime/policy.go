package runtime

import (
	"math"
	"math/rand"
	"time"
)

type BackoffKind string

const (
	BackoffFixed       BackoffKind = "fixed"
	BackoffExponential BackoffKind = "exponential"
)

// Backoff governs how the retry delay grows. Min falls back to the command delay, then 1s.
type Backoff struct {
	Kind       BackoffKind
	Min        time.Duration
	Max        time.Duration // default 30s, exponential only
	JitterFrac float64       // zero means no jitter
}

// Policy is a command type's baseline scheduling. Callers override it field by field
// when scheduling.
type Policy struct {
	Delay         time.Duration
	Retries       int
	Transactional bool
	// Period makes the command repeat. Periodic commands are never failed for good;
	// a failed run waits for the next period.
	Period  time.Duration
	Backoff Backoff
}

// RetryDelay is the delay before retry number attempt (1-based), measured from now.
func (p Policy) RetryDelay(commandDelay time.Duration, attempt int) time.Duration {
	b := p.Backoff
	base := b.Min
	if base <= 0 {
		base = commandDelay
	}
	if base <= 0 {
		base = time.Second
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	if b.Kind == BackoffExponential {
		maxB := b.Max
		if maxB <= 0 {
			maxB = 30 * time.Second
		}
		d = time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
		if d > maxB || d <= 0 {
			d = maxB
		}
	}
	if b.JitterFrac <= 0 {
		return d
	}
	delta := float64(d) * b.JitterFrac
	low := float64(d) - delta
	high := float64(d) + delta
	if low < 0 {
		low = 0
	}
	return time.Duration(low + rand.Float64()*(high-low))
}
