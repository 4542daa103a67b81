package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// BackoffConfig computes resubmission delays: exponential growth from
// Initial capped at Max, plus additive jitter of at most
// JitterFraction of the base delay.
type BackoffConfig struct {
	Initial        time.Duration
	Max            time.Duration
	JitterFraction float64
}

func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:        500 * time.Millisecond,
		Max:            15 * time.Second,
		JitterFraction: 0.3,
	}
}

// Base returns the pre-jitter delay for an attempt (0-based). It is
// monotonically non-decreasing in the attempt number and never exceeds
// Max.
func (c BackoffConfig) Base(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	initial := c.Initial
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	max := c.Max
	if max <= 0 {
		max = 15 * time.Second
	}

	delay := float64(initial) * math.Pow(2, float64(attempt))
	if delay > float64(max) {
		delay = float64(max)
	}
	return time.Duration(delay)
}

// Delay is Base plus jitter.
func (c BackoffConfig) Delay(attempt int) time.Duration {
	base := c.Base(attempt)

	fraction := c.JitterFraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.3
	}

	jitter := time.Duration(rand.Float64() * fraction * float64(base))
	return base + jitter
}

// Sleep blocks for the attempt's delay or until the context ends.
func (c BackoffConfig) Sleep(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.Delay(attempt)):
		return nil
	}
}
