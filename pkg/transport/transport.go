package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Transport errors.
var (
	// ErrBusy reports back-pressure: the frame was not taken and may be
	// offered again later.
	ErrBusy = errors.New("transport busy")

	// ErrClosed reports a link that was closed locally or by the peer.
	ErrClosed = errors.New("transport closed")

	ErrUnknownKind = errors.New("unknown transport kind")
)

// Kind selects a transport variant.
type Kind uint8

const (
	KindCoAPTCP Kind = iota
	KindCoAPDTLS
	KindStream
	KindMemory
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindCoAPTCP:
		return "coap+tcp"
	case KindCoAPDTLS:
		return "coaps"
	case KindStream:
		return "stream"
	case KindMemory:
		return "memory"
	default:
		return "unknown"
	}
}

// ParseKind parses a kind name as printed by String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "coap+tcp", "tcp", "":
		return KindCoAPTCP, nil
	case "coaps", "dtls":
		return KindCoAPDTLS, nil
	case "stream":
		return KindStream, nil
	case "memory":
		return KindMemory, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Transport establishes links to one peer.
type Transport interface {
	// Dial connects to the peer. It may block for network round-trips and
	// honors ctx cancellation.
	Dial(ctx context.Context) (Link, error)
}

// Link is one established session carrying wire frames.
type Link interface {
	// Poll returns the next buffered inbound frame without blocking.
	// ok is false when nothing is buffered. A non-nil error means the
	// session is gone; buffered frames are drained first.
	Poll() (frame []byte, ok bool, err error)

	// Send queues a frame. It returns ErrBusy when the link cannot take
	// the frame now and ErrClosed once the session is gone.
	Send(frame []byte) error

	// RemoteAddr returns the peer address for logs.
	RemoteAddr() string

	// Close releases the session. It is safe to call more than once.
	Close() error
}

// DialFunc adapts a function to Transport.
type DialFunc func(ctx context.Context) (Link, error)

// Dial calls f(ctx).
func (f DialFunc) Dial(ctx context.Context) (Link, error) { return f(ctx) }
