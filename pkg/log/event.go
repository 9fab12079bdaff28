package log

import (
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/iotdm/iotdm-go/pkg/wire"
)

// Event is one protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// ConnectionID identifies the channel (UUID).
	ConnectionID string `cbor:"2,keyasint"`

	Direction Direction `cbor:"3,keyasint"`
	Layer     Layer     `cbor:"4,keyasint"`
	Category  Category  `cbor:"5,keyasint"`

	// Endpoint is the client endpoint name sent at registration.
	Endpoint string `cbor:"6,keyasint,omitempty"`

	// RemoteAddr is the peer address (host:port).
	RemoteAddr string `cbor:"7,keyasint,omitempty"`

	// Exactly one of these is set.
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"`
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"`
	StateChange *StateChangeEvent `cbor:"12,keyasint,omitempty"`
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"`
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	DirectionIn  Direction = 0
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which layer captured the event.
type Layer uint8

const (
	// LayerTransport carries raw frame bytes.
	LayerTransport Layer = 0
	// LayerWire carries decoded messages.
	LayerWire Layer = 1
	// LayerSession carries connection and registration state.
	LayerSession Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerTransport:
		return "TRANSPORT"
	case LayerWire:
		return "WIRE"
	case LayerSession:
		return "SESSION"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event.
type Category uint8

const (
	CategoryMessage Category = 0
	CategoryState   Category = 2
	CategoryError   Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the transport layer.
type FrameEvent struct {
	// Size is the full frame size in bytes.
	Size int `cbor:"1,keyasint"`

	// Data is the frame (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded message at the wire layer.
type MessageEvent struct {
	Kind  wire.Kind     `cbor:"1,keyasint"`
	Token message.Token `cbor:"2,keyasint"`

	// For requests.
	Operation *wire.Operation `cbor:"3,keyasint,omitempty"`
	Path      string          `cbor:"4,keyasint,omitempty"`

	// For responses and notifications.
	Code *codes.Code `cbor:"5,keyasint,omitempty"`

	ContentFormat message.MediaType `cbor:"6,keyasint,omitempty"`
	Observe       *uint32           `cbor:"7,keyasint,omitempty"`
	PayloadSize   int               `cbor:"8,keyasint,omitempty"`

	// ProcessingTime is the time from request receipt to response (responses only).
	ProcessingTime *time.Duration `cbor:"9,keyasint,omitempty"`
}

// NewMessageEvent summarizes m for capture.
func NewMessageEvent(m *wire.Message) *MessageEvent {
	ev := &MessageEvent{
		Kind:          m.Kind,
		Token:         m.Token,
		ContentFormat: m.ContentFormat,
		Observe:       m.Observe,
		PayloadSize:   len(m.Payload),
	}
	if m.Kind == wire.KindRequest {
		op := m.Operation
		ev.Operation = &op
		ev.Path = m.Path
	} else {
		code := m.Code
		ev.Code = &code
	}
	return ev
}

// StateChangeEvent captures connection and registration lifecycle events.
type StateChangeEvent struct {
	Entity   StateEntity `cbor:"1,keyasint"`
	OldState string      `cbor:"2,keyasint,omitempty"`
	NewState string      `cbor:"3,keyasint"`
	Reason   string      `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what changed state.
type StateEntity uint8

const (
	StateEntityConnection   StateEntity = 0
	StateEntityRegistration StateEntity = 1
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityConnection:
		return "CONNECTION"
	case StateEntityRegistration:
		return "REGISTRATION"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures an error at any layer.
type ErrorEventData struct {
	Layer   Layer  `cbor:"1,keyasint"`
	Message string `cbor:"2,keyasint"`

	// Code is the response code sent to the peer, if any.
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what was being done.
	Context string `cbor:"4,keyasint,omitempty"`
}
