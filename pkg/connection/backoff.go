package connection

import (
	"math/rand/v2"
	"time"
)

// Retransmission parameters (RFC 7252 section 4.8). Reconnect pacing
// reuses them.
const (
	// InitialBackoff is ACK_TIMEOUT.
	InitialBackoff = 2 * time.Second

	// MaxBackoff caps the base delay.
	MaxBackoff = 60 * time.Second

	// BackoffMultiplier doubles the delay after each attempt.
	BackoffMultiplier = 2.0

	// JitterFactor is ACK_RANDOM_FACTOR - 1.
	JitterFactor = 0.5

	// MaxRetransmit is the number of retries after the first attempt.
	MaxRetransmit = 4
)

// BackoffConfig shapes a retransmission schedule. Non-positive Initial or
// Max and a Multiplier of at most 1 take the defaults; a negative Jitter
// is treated as none.
type BackoffConfig struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// DefaultBackoffConfig returns the CoAP schedule.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Initial:    InitialBackoff,
		Max:        MaxBackoff,
		Multiplier: BackoffMultiplier,
		Jitter:     JitterFactor,
	}
}

func (c BackoffConfig) normalize() BackoffConfig {
	if c.Initial <= 0 {
		c.Initial = InitialBackoff
	}
	if c.Max <= 0 {
		c.Max = MaxBackoff
	}
	if c.Multiplier <= 1 {
		c.Multiplier = BackoffMultiplier
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// Sequence returns the first n base delays of the schedule.
func (c BackoffConfig) Sequence(n int) []time.Duration {
	c = c.normalize()
	seq := make([]time.Duration, 0, n)
	d := c.Initial
	for range n {
		seq = append(seq, d)
		d = c.step(d)
	}
	return seq
}

func (c BackoffConfig) step(d time.Duration) time.Duration {
	return min(time.Duration(float64(d)*c.Multiplier), c.Max)
}

// Backoff walks one schedule. The random factor is drawn once when the
// schedule starts and scales every delay, the way CoAP randomizes only
// the initial timeout and doubles from there.
//
// A Backoff is owned by a single goroutine.
type Backoff struct {
	config   BackoffConfig
	base     time.Duration
	scale    float64
	attempts int
}

// NewBackoff returns a schedule with the CoAP defaults.
func NewBackoff() *Backoff {
	return NewBackoffWithConfig(DefaultBackoffConfig())
}

// NewBackoffWithConfig returns a schedule shaped by cfg.
func NewBackoffWithConfig(cfg BackoffConfig) *Backoff {
	b := &Backoff{config: cfg.normalize()}
	b.Reset()
	return b
}

// Next returns the wait before the next attempt and advances.
func (b *Backoff) Next() time.Duration {
	d := time.Duration(float64(b.base) * b.scale)
	b.attempts++
	b.base = b.config.step(b.base)
	return d
}

// Reset restarts the schedule with a fresh random factor.
func (b *Backoff) Reset() {
	b.base = b.config.Initial
	b.attempts = 0
	b.scale = 1 + b.config.Jitter*rand.Float64()
}

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int { return b.attempts }

// Base returns the next base delay, before randomization.
func (b *Backoff) Base() time.Duration { return b.base }

// Scale returns the random factor of the current schedule, in
// [1, 1+Jitter].
func (b *Backoff) Scale() float64 { return b.scale }
