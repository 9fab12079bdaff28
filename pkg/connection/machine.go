package connection

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Connection errors.
var (
	ErrClosed            = errors.New("connection closed")
	ErrAlreadyConnecting = errors.New("connect already outstanding")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrConnectTimeout    = errors.New("connection timeout")
	ErrSessionLost       = errors.New("session lost")
)

// DefaultConnectTimeout bounds a connect attempt when none is configured.
const DefaultConnectTimeout = 30 * time.Second

// State represents the connection state.
type State uint8

const (
	// StateClosed indicates no connection has been attempted, or the
	// machine was torn down.
	StateClosed State = iota

	// StateConnecting indicates a connect attempt is in progress.
	StateConnecting

	// StateConnected indicates an established session.
	StateConnected

	// StateFailed indicates the last attempt failed or the session was lost.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Completion receives the outcome of a connect attempt: nil on success.
type Completion func(err error)

// StateChangeFunc observes transitions.
type StateChangeFunc func(oldState, newState State, reason error)

// Machine tracks the connection state of one channel.
type Machine struct {
	mu sync.Mutex

	state    State
	tornDown bool

	// Outstanding connect attempt
	completion Completion
	deadline   time.Time
	timeout    time.Duration

	onStateChange StateChangeFunc
}

// NewMachine creates a machine in StateClosed.
func NewMachine(timeout time.Duration) *Machine {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &Machine{
		state:   StateClosed,
		timeout: timeout,
	}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected returns true if the session is established.
func (m *Machine) IsConnected() bool {
	return m.State() == StateConnected
}

// IsTornDown returns true once Close has been called.
func (m *Machine) IsTornDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tornDown
}

// Deadline returns the connect deadline of the outstanding attempt.
func (m *Machine) Deadline() (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline, m.state == StateConnecting
}

// OnStateChange sets a callback for state changes.
func (m *Machine) OnStateChange(fn StateChangeFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = fn
}

// Begin starts a connect attempt at now. onComplete may be nil.
// It is only ever invoked through the function returned by a later
// Establish, Fail or CheckTimeout.
func (m *Machine) Begin(now time.Time, onComplete Completion) error {
	m.mu.Lock()
	switch {
	case m.tornDown:
		m.mu.Unlock()
		return ErrClosed
	case m.state == StateConnecting:
		m.mu.Unlock()
		return ErrAlreadyConnecting
	case m.state == StateConnected:
		m.mu.Unlock()
		return ErrAlreadyConnected
	}

	old := m.state
	m.state = StateConnecting
	m.completion = onComplete
	m.deadline = now.Add(m.timeout)
	notify := m.onStateChange
	m.mu.Unlock()

	if notify != nil {
		notify(old, StateConnecting, nil)
	}
	return nil
}

// Establish moves Connecting to Connected. The returned function fires
// the completion with success; it is nil when no attempt was outstanding.
func (m *Machine) Establish() func() {
	m.mu.Lock()
	if m.state != StateConnecting {
		m.mu.Unlock()
		return nil
	}
	return m.finishLocked(StateConnected, nil)
}

// Fail ends the outstanding attempt with reason, or marks an established
// session as lost. The returned function fires the completion of an
// outstanding attempt; it is nil for a lost session.
func (m *Machine) Fail(reason error) func() {
	m.mu.Lock()
	switch m.state {
	case StateConnecting:
		return m.finishLocked(StateFailed, reason)
	case StateConnected:
		m.state = StateFailed
		notify := m.onStateChange
		m.mu.Unlock()
		if notify != nil {
			notify(StateConnected, StateFailed, fmt.Errorf("%w: %v", ErrSessionLost, reason))
		}
		return nil
	default:
		m.mu.Unlock()
		return nil
	}
}

// CheckTimeout fails the outstanding attempt once its deadline has passed.
func (m *Machine) CheckTimeout(now time.Time) func() {
	m.mu.Lock()
	if m.state != StateConnecting || now.Before(m.deadline) {
		m.mu.Unlock()
		return nil
	}
	return m.finishLocked(StateFailed, ErrConnectTimeout)
}

// finishLocked ends the attempt. Called with m.mu held; releases it.
func (m *Machine) finishLocked(to State, reason error) func() {
	old := m.state
	m.state = to
	completion := m.completion
	m.completion = nil
	m.deadline = time.Time{}
	notify := m.onStateChange
	m.mu.Unlock()

	if notify != nil {
		notify(old, to, reason)
	}

	return func() {
		if completion == nil {
			return
		}
		// Close may run between the transition and the call.
		if m.IsTornDown() {
			return
		}
		completion(reason)
	}
}

// Close tears the machine down. An outstanding completion is discarded.
// Further Begin calls fail with ErrClosed.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.tornDown {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = StateClosed
	m.tornDown = true
	m.completion = nil
	m.deadline = time.Time{}
	notify := m.onStateChange
	m.mu.Unlock()

	if notify != nil && old != StateClosed {
		notify(old, StateClosed, ErrClosed)
	}
}
