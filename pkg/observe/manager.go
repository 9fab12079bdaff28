package observe

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"

	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/transport"
)

// Notification is one notification to send.
type Notification struct {
	Path   model.Path
	Token  message.Token
	Seq    uint32
	Values []model.Value

	// ID identifies the registration the notification belongs to. A
	// re-observe with the same token gets a new ID.
	ID uint64

	// KeepAlive is set when the value did not change since the last
	// notification.
	KeepAlive bool

	// Confirmable notifications must be acknowledged.
	Confirmable bool
}

// Reader reads the current values at a path.
type Reader interface {
	Read(p model.Path) ([]model.Value, error)
}

// Sender delivers notifications. Send returns transport.ErrBusy when the
// transport cannot take the frame yet.
type Sender interface {
	SendNotification(n Notification) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(n Notification) error

// SendNotification calls f(n).
func (f SenderFunc) SendNotification(n Notification) error { return f(n) }

// Manager holds the registrations of one session.
type Manager struct {
	mu sync.Mutex

	config        Config
	registrations map[model.Path]*Registration
	nextID        uint64
}

// NewManager creates a manager with default configuration.
func NewManager() *Manager {
	return NewManagerWithConfig(DefaultConfig())
}

// NewManagerWithConfig creates a manager with custom configuration.
func NewManagerWithConfig(config Config) *Manager {
	if config.MaxObservations <= 0 {
		config.MaxObservations = DefaultMaxObservations
	}
	return &Manager{
		config:        config,
		registrations: make(map[model.Path]*Registration),
	}
}

// Observe creates the registration for path, replacing any existing one.
// current is the value set returned in the OBSERVE response; it becomes
// the first snapshot and now the first notification time.
func (m *Manager) Observe(path model.Path, token message.Token, pmin, pmax time.Duration, current []model.Value, now time.Time) error {
	if len(token) == 0 {
		return fmt.Errorf("observe %s: empty token", path)
	}
	if err := ValidatePeriods(pmin, pmax); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, replacing := m.registrations[path]; !replacing && len(m.registrations) >= m.config.MaxObservations {
		return ErrTooManyObservations
	}

	m.nextID++
	m.registrations[path] = &Registration{
		id:           m.nextID,
		Path:         path,
		Token:        append(message.Token(nil), token...),
		MinPeriod:    pmin,
		MaxPeriod:    pmax,
		snapshot:     cloneValues(current),
		lastNotified: now,
	}
	return nil
}

// Cancel removes the registration for path. Removing an absent
// registration is not an error.
func (m *Manager) Cancel(path model.Path) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registrations[path]; !ok {
		return false
	}
	delete(m.registrations, path)
	return true
}

// CancelToken removes the registration created with token.
func (m *Manager) CancelToken(token message.Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.byTokenLocked(token)
	if reg == nil {
		return false
	}
	delete(m.registrations, reg.Path)
	return true
}

// RemovePath drops every registration at or below removed. It is installed
// as a registry removal listener.
func (m *Manager) RemovePath(removed model.Path) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for path := range m.registrations {
		if removed.Contains(path) {
			delete(m.registrations, path)
		}
	}
}

// ClearAll removes all registrations (e.g., on Close or session loss).
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registrations = make(map[model.Path]*Registration)
}

// Acknowledge ends the in-flight notification carrying token.
func (m *Manager) Acknowledge(token message.Token) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.byTokenLocked(token)
	if reg == nil || !reg.inFlight {
		return false
	}
	reg.inFlight = false
	return true
}

// AcknowledgeNotification ends the in-flight notification of registration
// id. It reports false when that registration was replaced or removed.
func (m *Manager) AcknowledgeNotification(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.byIDLocked(id)
	if reg == nil {
		return false
	}
	reg.inFlight = false
	return true
}

// CancelNotification removes registration id after its notification was
// rejected or never acknowledged. A newer registration on the same path
// or token is left alone.
func (m *Manager) CancelNotification(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg := m.byIDLocked(id)
	if reg == nil {
		return false
	}
	delete(m.registrations, reg.Path)
	return true
}

// Get returns a copy of the registration for path.
func (m *Manager) Get(path model.Path) (Registration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.registrations[path]
	if !ok {
		return Registration{}, false
	}
	return *reg, true
}

// Count returns the number of live registrations.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registrations)
}

// Tick evaluates every registration at now and sends the notifications
// that are due. Registrations whose path no longer exists are dropped.
// Errors other than back-pressure are collected and returned.
func (m *Manager) Tick(now time.Time, reader Reader, sender Sender) error {
	var errs []error
	for _, reg := range m.idle() {
		current, err := reader.Read(reg.Path)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				m.dropIfCurrent(reg)
				continue
			}
			errs = append(errs, fmt.Errorf("observe %s: %w", reg.Path, err))
			continue
		}

		m.mu.Lock()
		d := reg.evaluate(now, current)
		n := Notification{
			Path:        reg.Path,
			Token:       reg.Token,
			Seq:         reg.seq + 1,
			Values:      current,
			ID:          reg.id,
			KeepAlive:   d == decideKeepAlive,
			Confirmable: m.config.Confirmable,
		}
		m.mu.Unlock()
		if d == decideWait {
			continue
		}

		if err := sender.SendNotification(n); err != nil {
			if !errors.Is(err, transport.ErrBusy) {
				errs = append(errs, fmt.Errorf("notify %s: %w", reg.Path, err))
			}
			continue
		}

		m.mu.Lock()
		if m.registrations[reg.Path] == reg {
			reg.seq = n.Seq
			reg.lastNotified = now
			if !n.KeepAlive {
				reg.snapshot = cloneValues(current)
			}
			reg.inFlight = n.Confirmable
		}
		m.mu.Unlock()
	}
	return errors.Join(errs...)
}

// idle returns the registrations without an in-flight notification, in
// path order.
func (m *Manager) idle() []*Registration {
	m.mu.Lock()
	defer m.mu.Unlock()

	regs := make([]*Registration, 0, len(m.registrations))
	for _, reg := range m.registrations {
		if !reg.inFlight {
			regs = append(regs, reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool { return regs[i].Path.String() < regs[j].Path.String() })
	return regs
}

func (m *Manager) dropIfCurrent(reg *Registration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registrations[reg.Path] == reg {
		delete(m.registrations, reg.Path)
	}
}

func (m *Manager) byTokenLocked(token message.Token) *Registration {
	for _, reg := range m.registrations {
		if bytes.Equal(reg.Token, token) {
			return reg
		}
	}
	return nil
}

func (m *Manager) byIDLocked(id uint64) *Registration {
	for _, reg := range m.registrations {
		if reg.id == id {
			return reg
		}
	}
	return nil
}
