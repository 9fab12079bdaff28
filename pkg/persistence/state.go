package persistence

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/iotdm/iotdm-go/pkg/model"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ErrVersion is returned when a state file has an unknown format version.
var ErrVersion = errors.New("unsupported state file version")

// ClientState contains the runtime state of a device client.
type ClientState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// Endpoint is the registration endpoint name the state belongs to.
	Endpoint string `json:"endpoint,omitempty"`

	// Location is the registration location of the last session.
	Location string `json:"location,omitempty"`

	// Values are the writable resource values, ordered by path.
	Values []ResourceValue `json:"values,omitempty"`
}

// ResourceValue is one persisted resource value.
type ResourceValue struct {
	Path  model.Path `json:"path"`
	Type  string     `json:"type"`
	Value any        `json:"value"`
}

// Snapshot collects the current value of every writable resource in reg.
func Snapshot(reg *model.Registry) ([]ResourceValue, error) {
	var values []ResourceValue
	var walk func(p model.Path) error
	walk = func(p model.Path) error {
		if p.IsResource() {
			def, err := reg.Definition(p)
			if err != nil {
				return err
			}
			if !def.Access.CanWrite() {
				return nil
			}
			v, err := reg.Get(p)
			if err != nil {
				return err
			}
			if v != nil {
				values = append(values, ResourceValue{Path: p, Type: def.Type.String(), Value: v})
			}
			return nil
		}
		children, err := reg.Children(p)
		if err != nil {
			return err
		}
		for _, child := range children {
			if err := walk(child); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(model.RootPath()); err != nil {
		return nil, err
	}
	return values, nil
}

// Restore writes saved values back into reg. Paths that no longer exist
// are skipped; other failures are collected and returned together.
func Restore(reg *model.Registry, values []ResourceValue) error {
	var errs []error
	for _, rv := range values {
		def, err := reg.Definition(rv.Path)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		v := rv.Value
		if s, ok := v.(string); ok && def.Type == model.DataTypeOpaque {
			if v, err = base64.StdEncoding.DecodeString(s); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", rv.Path, err))
				continue
			}
		}
		if err := reg.Set(rv.Path, v); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StateStore manages persistence of client state to a JSON file.
type StateStore struct {
	mu   sync.Mutex
	path string
}

// NewStateStore creates a new state store.
func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

// Path returns the state file path.
func (s *StateStore) Path() string { return s.path }

// Save persists the client state to disk.
func (s *StateStore) Save(state *ClientState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	if state.SavedAt.IsZero() {
		state.SavedAt = time.Now()
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	// Replace atomically.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// Load reads the client state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *StateStore) Load() (*ClientState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &ClientState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}
	if state.Version != StateVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, state.Version)
	}
	return state, nil
}

// Clear removes the state file.
func (s *StateStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
