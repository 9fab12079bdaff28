package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Depth levels of a Path.
const (
	DepthRoot     = 0
	DepthObject   = 1
	DepthInstance = 2
	DepthResource = 3
)

// Path addresses a node in the registry.
// The zero value is the root path "/".
type Path struct {
	ObjectID   uint16
	InstanceID uint16
	ResourceID uint16

	depth uint8
}

// RootPath returns the path of the registry root.
func RootPath() Path { return Path{} }

// ObjectPath returns the path of an object.
func ObjectPath(objectID uint16) Path {
	return Path{ObjectID: objectID, depth: DepthObject}
}

// InstancePath returns the path of an object instance.
func InstancePath(objectID, instanceID uint16) Path {
	return Path{ObjectID: objectID, InstanceID: instanceID, depth: DepthInstance}
}

// ResourcePath returns the path of a resource.
func ResourcePath(objectID, instanceID, resourceID uint16) Path {
	return Path{ObjectID: objectID, InstanceID: instanceID, ResourceID: resourceID, depth: DepthResource}
}

// ParsePath parses "3", "/3/0" or "/3/0/9". An empty string or "/" is the root.
func ParsePath(s string) (Path, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	if s == "" {
		return RootPath(), nil
	}

	parts := strings.Split(s, "/")
	if len(parts) > DepthResource {
		return Path{}, fmt.Errorf("%w: %q has too many segments", ErrInvalidPath, s)
	}

	ids := make([]uint16, len(parts))
	for i, part := range parts {
		n, err := strconv.ParseUint(part, 10, 16)
		if err != nil {
			return Path{}, fmt.Errorf("%w: segment %q", ErrInvalidPath, part)
		}
		ids[i] = uint16(n)
	}

	switch len(ids) {
	case DepthObject:
		return ObjectPath(ids[0]), nil
	case DepthInstance:
		return InstancePath(ids[0], ids[1]), nil
	default:
		return ResourcePath(ids[0], ids[1], ids[2]), nil
	}
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Depth returns the number of segments in the path.
func (p Path) Depth() int { return int(p.depth) }

// IsRoot returns true for the root path.
func (p Path) IsRoot() bool { return p.depth == DepthRoot }

// IsObject returns true if the path addresses an object.
func (p Path) IsObject() bool { return p.depth == DepthObject }

// IsInstance returns true if the path addresses an instance.
func (p Path) IsInstance() bool { return p.depth == DepthInstance }

// IsResource returns true if the path addresses a resource.
func (p Path) IsResource() bool { return p.depth == DepthResource }

// Parent returns the containing path. The parent of the root is the root.
func (p Path) Parent() Path {
	switch p.depth {
	case DepthResource:
		return InstancePath(p.ObjectID, p.InstanceID)
	case DepthInstance:
		return ObjectPath(p.ObjectID)
	default:
		return RootPath()
	}
}

// Contains reports whether other is p itself or lies below p.
func (p Path) Contains(other Path) bool {
	if other.depth < p.depth {
		return false
	}
	if p.depth >= DepthObject && p.ObjectID != other.ObjectID {
		return false
	}
	if p.depth >= DepthInstance && p.InstanceID != other.InstanceID {
		return false
	}
	if p.depth >= DepthResource && p.ResourceID != other.ResourceID {
		return false
	}
	return true
}

// String renders the path, e.g. "/3/0/9".
func (p Path) String() string {
	switch p.depth {
	case DepthObject:
		return fmt.Sprintf("/%d", p.ObjectID)
	case DepthInstance:
		return fmt.Sprintf("/%d/%d", p.ObjectID, p.InstanceID)
	case DepthResource:
		return fmt.Sprintf("/%d/%d/%d", p.ObjectID, p.InstanceID, p.ResourceID)
	default:
		return "/"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(text []byte) error {
	parsed, err := ParsePath(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
