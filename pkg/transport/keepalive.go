package transport

import (
	"net"
	"time"
)

// Keep-alive defaults for stream sessions.
const (
	// DefaultKeepAliveIdle is how long a session may sit idle before the
	// first keep-alive packet.
	DefaultKeepAliveIdle = 30 * time.Second

	// DefaultKeepAliveInterval spaces unanswered keep-alive packets.
	DefaultKeepAliveInterval = 5 * time.Second

	// DefaultKeepAliveCount is the number of unanswered packets after which
	// the peer is considered gone.
	DefaultKeepAliveCount = 3
)

// KeepAlive configures liveness checks on a stream session. A dead peer
// fails the link's reader, which ends the session like any other network
// error.
type KeepAlive struct {
	Idle     time.Duration
	Interval time.Duration
	Count    int

	// Disabled turns the checks off.
	Disabled bool
}

// DefaultKeepAlive returns the default keep-alive schedule.
func DefaultKeepAlive() KeepAlive {
	return KeepAlive{
		Idle:     DefaultKeepAliveIdle,
		Interval: DefaultKeepAliveInterval,
		Count:    DefaultKeepAliveCount,
	}
}

func (k KeepAlive) normalize() KeepAlive {
	if k.Idle <= 0 {
		k.Idle = DefaultKeepAliveIdle
	}
	if k.Interval <= 0 {
		k.Interval = DefaultKeepAliveInterval
	}
	if k.Count <= 0 {
		k.Count = DefaultKeepAliveCount
	}
	return k
}

// DetectionDelay is the longest a silent peer goes unnoticed.
func (k KeepAlive) DetectionDelay() time.Duration {
	if k.Disabled {
		return 0
	}
	k = k.normalize()
	return k.Idle + k.Interval*time.Duration(k.Count)
}

// dialer returns a TCP dialer carrying the keep-alive schedule.
func (k KeepAlive) dialer() *net.Dialer {
	if k.Disabled {
		return &net.Dialer{KeepAlive: -1}
	}
	k = k.normalize()
	return &net.Dialer{KeepAliveConfig: net.KeepAliveConfig{
		Enable:   true,
		Idle:     k.Idle,
		Interval: k.Interval,
		Count:    k.Count,
	}}
}
