package wire

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
)

// Content formats used in payloads. go-coap declares its media types as
// variables, so the registered numbers are repeated here as constants.
const (
	FormatText       message.MediaType = 0
	FormatLinkFormat message.MediaType = 40
	FormatOpaque     message.MediaType = 42
	FormatSenMLJSON  = message.MediaType(110)
	FormatSenMLCBOR  = message.MediaType(112)
)

// Observe option values in requests.
const (
	ObserveRegister   uint32 = 0
	ObserveDeregister uint32 = 1
)

// Query parameters carried on Observe requests.
const (
	QueryMinPeriod = "pmin"
	QueryMaxPeriod = "pmax"
)

// Message validation errors.
var (
	ErrMissingToken   = errors.New("message has no token")
	ErrInvalidKind    = errors.New("invalid message kind")
	ErrInvalidOp      = errors.New("invalid operation")
	ErrMissingCode    = errors.New("response has no code")
	ErrMissingObserve = errors.New("notification has no observe sequence")
)

// Kind distinguishes requests, responses and notifications.
type Kind uint8

const (
	KindRequest  Kind = 0
	KindResponse Kind = 1
	KindNotify   Kind = 2

	// KindAck acknowledges a confirmable notification.
	KindAck Kind = 3

	// KindReset rejects a notification; the observation is cancelled.
	KindReset Kind = 4
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "REQUEST"
	case KindResponse:
		return "RESPONSE"
	case KindNotify:
		return "NOTIFY"
	case KindAck:
		return "ACK"
	case KindReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// Operation is the LWM2M operation a request performs.
type Operation uint8

const (
	// Device management interface, server to client.
	OpRead          Operation = 1
	OpWrite         Operation = 2
	OpExecute       Operation = 3
	OpObserve       Operation = 4
	OpCancelObserve Operation = 5
	OpDiscover      Operation = 6

	// Registration interface, client to server.
	OpRegister   Operation = 10
	OpUpdate     Operation = 11
	OpDeregister Operation = 12
	OpAuth       Operation = 13
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpExecute:
		return "EXECUTE"
	case OpObserve:
		return "OBSERVE"
	case OpCancelObserve:
		return "CANCEL-OBSERVE"
	case OpDiscover:
		return "DISCOVER"
	case OpRegister:
		return "REGISTER"
	case OpUpdate:
		return "UPDATE"
	case OpDeregister:
		return "DEREGISTER"
	case OpAuth:
		return "AUTH"
	default:
		return "UNKNOWN"
	}
}

// ParseOperation parses an operation name as returned by String,
// ignoring case.
func ParseOperation(s string) (Operation, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for o := OpRead; o <= OpAuth; o++ {
		if o.IsValid() && o.String() == name {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// IsValid returns true for a known operation.
func (o Operation) IsValid() bool {
	return (o >= OpRead && o <= OpDiscover) || (o >= OpRegister && o <= OpAuth)
}

// IsServerInitiated returns true for operations the server sends to the client.
func (o Operation) IsServerInitiated() bool {
	return o >= OpRead && o <= OpDiscover
}

// Message is one protocol message.
type Message struct {
	Kind          Kind              `cbor:"1,keyasint"`
	Token         message.Token     `cbor:"2,keyasint"`
	Operation     Operation         `cbor:"3,keyasint,omitempty"`
	Path          string            `cbor:"4,keyasint,omitempty"`
	Query         []string          `cbor:"5,keyasint,omitempty"`
	Code          codes.Code        `cbor:"6,keyasint,omitempty"`
	ContentFormat message.MediaType `cbor:"7,keyasint,omitempty"`
	Observe       *uint32           `cbor:"8,keyasint,omitempty"`
	Payload       []byte            `cbor:"9,keyasint,omitempty"`

	// Location is the Location-Path of a Register response.
	Location string `cbor:"10,keyasint,omitempty"`

	// Confirmable notifications expect an acknowledgement carrying the
	// notification token.
	Confirmable bool `cbor:"11,keyasint,omitempty"`

	// Accept is the payload format a READ, OBSERVE or DISCOVER asks for.
	Accept *message.MediaType `cbor:"12,keyasint,omitempty"`
}

// Validate checks the fields required by the message kind.
func (m *Message) Validate() error {
	if len(m.Token) == 0 {
		return ErrMissingToken
	}
	switch m.Kind {
	case KindRequest:
		if !m.Operation.IsValid() {
			return fmt.Errorf("%w: %d", ErrInvalidOp, m.Operation)
		}
	case KindResponse:
		if m.Code == codes.Empty {
			return ErrMissingCode
		}
	case KindNotify:
		if m.Observe == nil {
			return ErrMissingObserve
		}
	case KindAck, KindReset:
	default:
		return fmt.Errorf("%w: %d", ErrInvalidKind, m.Kind)
	}
	return nil
}

// IsSuccess returns true for a 2.xx response code.
func (m *Message) IsSuccess() bool {
	return m.Code >= codes.Created && m.Code < codes.BadRequest
}

// QueryValue returns the value of a "name=value" query parameter.
func (m *Message) QueryValue(name string) (string, bool) {
	prefix := name + "="
	for _, q := range m.Query {
		if v, ok := strings.CutPrefix(q, prefix); ok {
			return v, true
		}
	}
	return "", false
}

// QueryInt returns an integer query parameter.
func (m *Message) QueryInt(name string) (int64, bool, error) {
	v, ok := m.QueryValue(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("query %s: %w", name, err)
	}
	return n, true, nil
}

// NewToken returns a random token.
func NewToken() (message.Token, error) {
	return message.GetToken()
}

// NewRequest creates a request with a fresh token.
func NewRequest(op Operation, path string) (*Message, error) {
	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	return &Message{Kind: KindRequest, Token: token, Operation: op, Path: path}, nil
}

// NewResponse creates a response correlated to req.
func NewResponse(req *Message, code codes.Code) *Message {
	return &Message{Kind: KindResponse, Token: req.Token, Code: code}
}

// NewNotify creates a notification for the observation with the given token.
func NewNotify(token message.Token, seq uint32, format message.MediaType, payload []byte) *Message {
	return &Message{
		Kind:          KindNotify,
		Token:         token,
		Code:          codes.Content,
		Observe:       &seq,
		ContentFormat: format,
		Payload:       payload,
	}
}

// NewAck acknowledges the notification carrying token.
func NewAck(token message.Token) *Message {
	return &Message{Kind: KindAck, Token: token}
}

// NewReset rejects the notification carrying token.
func NewReset(token message.Token) *Message {
	return &Message{Kind: KindReset, Token: token}
}

// AcceptFormat returns the requested format, or def when none was given.
func (m *Message) AcceptFormat(def message.MediaType) message.MediaType {
	if m.Accept == nil {
		return def
	}
	return *m.Accept
}

// ObserveSeq returns the observe sequence number or 0.
func (m *Message) ObserveSeq() uint32 {
	if m.Observe == nil {
		return 0
	}
	return *m.Observe
}

// String renders a one-line summary for logs.
func (m *Message) String() string {
	switch m.Kind {
	case KindRequest:
		return fmt.Sprintf("%s %s %s token=%s", m.Kind, m.Operation, m.Path, m.Token)
	case KindNotify:
		return fmt.Sprintf("%s seq=%d token=%s", m.Kind, m.ObserveSeq(), m.Token)
	case KindAck, KindReset:
		return fmt.Sprintf("%s token=%s", m.Kind, m.Token)
	default:
		return fmt.Sprintf("%s %s token=%s", m.Kind, m.Code, m.Token)
	}
}
