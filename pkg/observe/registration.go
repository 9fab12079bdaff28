package observe

import (
	"errors"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"

	"github.com/iotdm/iotdm-go/pkg/model"
)

// Observe errors.
var (
	ErrInvalidPeriod        = errors.New("invalid notification period")
	ErrTooManyObservations  = errors.New("maximum observations reached")
	ErrRegistrationNotFound = errors.New("observation not found")
)

// Default limits.
const (
	DefaultMinPeriod       = 1 * time.Second
	DefaultMaxPeriod       = 60 * time.Second
	DefaultMaxObservations = 32
)

// Config holds manager configuration.
type Config struct {
	// MaxObservations bounds the number of live registrations.
	MaxObservations int

	// Confirmable keeps each notification in flight until acknowledged.
	Confirmable bool
}

// DefaultConfig returns the default manager configuration.
func DefaultConfig() Config {
	return Config{MaxObservations: DefaultMaxObservations}
}

// Registration is one active observation.
type Registration struct {
	// Path is the observed path.
	Path model.Path

	// Token is the token of the OBSERVE request; notifications reuse it.
	Token message.Token

	// MinPeriod is the minimum time between notifications.
	MinPeriod time.Duration

	// MaxPeriod is the maximum time without a notification. Zero disables
	// keep-alives.
	MaxPeriod time.Duration

	id           uint64
	snapshot     []model.Value
	lastNotified time.Time
	seq          uint32
	inFlight     bool
}

// Seq returns the sequence number of the last notification. The OBSERVE
// response itself carries sequence 0.
func (r *Registration) Seq() uint32 { return r.seq }

// LastNotified returns when the last notification was sent.
func (r *Registration) LastNotified() time.Time { return r.lastNotified }

// InFlight reports whether a notification awaits acknowledgement.
func (r *Registration) InFlight() bool { return r.inFlight }

// Snapshot returns the values carried by the last notification.
func (r *Registration) Snapshot() []model.Value { return r.snapshot }

// ValidatePeriods checks a pmin/pmax pair.
func ValidatePeriods(pmin, pmax time.Duration) error {
	if pmin < 0 || pmax < 0 {
		return ErrInvalidPeriod
	}
	if pmax > 0 && pmin > pmax {
		return ErrInvalidPeriod
	}
	return nil
}

// decision is the outcome of evaluating one registration.
type decision uint8

const (
	decideWait decision = iota
	decideChanged
	decideKeepAlive
)

func (r *Registration) evaluate(now time.Time, current []model.Value) decision {
	elapsed := now.Sub(r.lastNotified)
	if !sameValues(r.snapshot, current) {
		if elapsed >= r.MinPeriod {
			return decideChanged
		}
		return decideWait
	}
	if r.MaxPeriod > 0 && elapsed >= r.MaxPeriod {
		return decideKeepAlive
	}
	return decideWait
}

func sameValues(a, b []model.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path || !model.ValuesEqual(a[i].Value, b[i].Value) {
			return false
		}
	}
	return true
}

func cloneValues(values []model.Value) []model.Value {
	out := make([]model.Value, len(values))
	for i, v := range values {
		out[i] = v
		if b, ok := v.Value.([]byte); ok {
			out[i].Value = append([]byte(nil), b...)
		}
	}
	return out
}
