package model

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"strings"
)

// Access flags for resources.
type Access uint8

const (
	// AccessRead allows the server to read the resource.
	AccessRead Access = 1 << iota

	// AccessWrite allows the server to write the resource.
	AccessWrite

	// AccessExecute allows the server to execute the resource.
	AccessExecute

	// Common access combinations.

	AccessReadOnly  = AccessRead
	AccessWriteOnly = AccessWrite
	AccessReadWrite = AccessRead | AccessWrite
)

// CanRead returns true if reading is allowed.
func (a Access) CanRead() bool { return a&AccessRead != 0 }

// CanWrite returns true if writing is allowed.
func (a Access) CanWrite() bool { return a&AccessWrite != 0 }

// CanExecute returns true if executing is allowed.
func (a Access) CanExecute() bool { return a&AccessExecute != 0 }

// String returns the access flags as a string.
func (a Access) String() string {
	var s string
	if a.CanRead() {
		s += "R"
	}
	if a.CanWrite() {
		s += "W"
	}
	if a.CanExecute() {
		s += "E"
	}
	if s == "" {
		return "-"
	}
	return s
}

// ParseAccess parses the notation used by String ("R", "RW", "E", ...).
func ParseAccess(s string) (Access, error) {
	var a Access
	for _, c := range strings.ToUpper(strings.TrimSpace(s)) {
		switch c {
		case 'R':
			a |= AccessRead
		case 'W':
			a |= AccessWrite
		case 'E':
			a |= AccessExecute
		default:
			return 0, fmt.Errorf("unknown access flag %q", c)
		}
	}
	if a == 0 {
		return 0, fmt.Errorf("empty access mode")
	}
	return a, nil
}

// DataType is the type of a resource value.
type DataType uint8

const (
	DataTypeNone DataType = iota
	DataTypeInteger
	DataTypeFloat
	DataTypeString
	DataTypeBoolean
	DataTypeOpaque
)

var dataTypeNames = []string{"none", "integer", "float", "string", "boolean", "opaque"}

// String returns the data type name.
func (d DataType) String() string {
	if int(d) < len(dataTypeNames) {
		return dataTypeNames[d]
	}
	return "unknown"
}

// ParseDataType parses a data type name as returned by String.
func ParseDataType(s string) (DataType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range dataTypeNames {
		if s == name {
			return DataType(i), nil
		}
	}
	return DataTypeNone, fmt.Errorf("unknown data type %q", s)
}

// ExecuteHandler runs the action bound to an executable resource.
// args carries the raw execute arguments, possibly empty.
type ExecuteHandler func(ctx context.Context, path Path, args string) error

// ResourceDefinition describes a resource's properties.
type ResourceDefinition struct {
	// ID is the resource identifier within the object.
	ID uint16

	// Name is the human-readable resource name.
	Name string

	// Type is the data type of the resource value.
	// Executable resources use DataTypeNone.
	Type DataType

	// Access defines the allowed remote operations.
	Access Access

	// Mandatory resources are always instantiated.
	Mandatory bool

	// Default is the initial value. Nil means the zero value of Type.
	Default any

	// MinValue is the minimum allowed value (numeric types).
	MinValue any

	// MaxValue is the maximum allowed value (numeric types).
	MaxValue any

	// Enum restricts the value to a fixed set, if non-empty.
	Enum []any

	// Units is the unit of measurement (e.g., "%", "mV", "s").
	Units string

	// Description is a human-readable description.
	Description string
}

// Resource is a resource instance with its current value.
type Resource struct {
	def     ResourceDefinition
	value   any
	handler ExecuteHandler
}

func newResource(def ResourceDefinition) (*Resource, error) {
	r := &Resource{def: def}
	if def.Access.CanExecute() || def.Type == DataTypeNone {
		return r, nil
	}

	initial := def.Default
	if initial == nil {
		initial = zeroValue(def.Type)
	}
	v, err := r.validate(initial)
	if err != nil {
		return nil, fmt.Errorf("resource %d default: %w", def.ID, err)
	}
	r.value = v
	return r, nil
}

// Definition returns the resource definition.
func (r *Resource) Definition() ResourceDefinition { return r.def }

// validate coerces value to the resource type and checks bounds.
func (r *Resource) validate(value any) (any, error) {
	v, err := coerce(r.def.Type, value)
	if err != nil {
		return nil, err
	}
	if err := checkRange(r.def, v); err != nil {
		return nil, err
	}
	if len(r.def.Enum) > 0 {
		for _, allowed := range r.def.Enum {
			if e, err := coerce(r.def.Type, allowed); err == nil && ValuesEqual(e, v) {
				return v, nil
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrNotInEnum, value)
	}
	return v, nil
}

func zeroValue(t DataType) any {
	switch t {
	case DataTypeInteger:
		return int64(0)
	case DataTypeFloat:
		return float64(0)
	case DataTypeString:
		return ""
	case DataTypeBoolean:
		return false
	case DataTypeOpaque:
		return []byte{}
	default:
		return nil
	}
}

// coerce converts value to the canonical Go type of t:
// int64, float64, string, bool or []byte.
func coerce(t DataType, value any) (any, error) {
	switch t {
	case DataTypeInteger:
		switch n := value.(type) {
		case float32:
			return integral(float64(n), value)
		case float64:
			return integral(n, value)
		}
		if i, ok := toInt64(value); ok {
			return i, nil
		}
		return nil, fmt.Errorf("%w: expected integer, got %T", ErrValueType, value)
	case DataTypeFloat:
		if f, ok := toFloat64(value); ok {
			return f, nil
		}
		return nil, fmt.Errorf("%w: expected float, got %T", ErrValueType, value)
	case DataTypeString:
		if s, ok := value.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("%w: expected string, got %T", ErrValueType, value)
	case DataTypeBoolean:
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: expected boolean, got %T", ErrValueType, value)
	case DataTypeOpaque:
		switch b := value.(type) {
		case []byte:
			return bytes.Clone(b), nil
		case string:
			return []byte(b), nil
		}
		return nil, fmt.Errorf("%w: expected opaque, got %T", ErrValueType, value)
	default:
		return nil, fmt.Errorf("%w: resource holds no value", ErrValueType)
	}
}

func integral(f float64, orig any) (any, error) {
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%w: %v is not an integer", ErrValueType, orig)
	}
	return int64(f), nil
}

// checkRange validates numeric range constraints.
func checkRange(def ResourceDefinition, value any) error {
	v, ok := toFloat64(value)
	if !ok {
		return nil
	}

	if def.MinValue != nil {
		if min, ok := toFloat64(def.MinValue); ok && v < min {
			return fmt.Errorf("%w: %v < %v", ErrOutOfRange, value, def.MinValue)
		}
	}
	if def.MaxValue != nil {
		if max, ok := toFloat64(def.MaxValue); ok && v > max {
			return fmt.Errorf("%w: %v > %v", ErrOutOfRange, value, def.MaxValue)
		}
	}
	return nil
}

// ValuesEqual compares two canonical resource values.
func ValuesEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	switch av := a.(type) {
	case int64:
		bv, ok := b.(int64)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	}
	return false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		if uint64(n) > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	if n, ok := v.(uint64); ok {
		return float64(n), true
	}
	return 0, false
}
