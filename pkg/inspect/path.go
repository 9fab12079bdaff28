// Package inspect resolves human friendly resource paths and formats
// registry contents for display.
//
// Paths may mix numeric IDs and definition names:
//   - "/3/0/9" or "3/0/9"
//   - "device/0/battery-level"
//   - "3/0/battery-level"
//
// Names are matched case-insensitively against the slug of the object or
// resource name. Instance IDs are always numeric.
package inspect

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/iotdm/iotdm-go/pkg/model"
)

// Path errors.
var (
	ErrEmptyPath   = errors.New("empty path")
	ErrInvalidPath = errors.New("invalid path format")
	ErrUnknownName = errors.New("unknown name")
)

// Slug returns the path form of a definition name:
// "Battery Level" becomes "battery-level".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ResolvePath parses input, looking names up in reg.
func ResolvePath(reg *model.Registry, input string) (model.Path, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return model.Path{}, ErrEmptyPath
	}
	if input == "/" {
		return model.RootPath(), nil
	}
	trimmed := strings.TrimPrefix(input, "/")
	if strings.Contains(trimmed, "//") || strings.HasSuffix(trimmed, "/") {
		return model.Path{}, fmt.Errorf("%w: %q", ErrInvalidPath, input)
	}

	parts := strings.Split(trimmed, "/")
	if len(parts) > 3 {
		return model.Path{}, fmt.Errorf("%w: %q has more than three segments", ErrInvalidPath, input)
	}

	objectID, err := resolveObject(reg, parts[0])
	if err != nil {
		return model.Path{}, err
	}
	if len(parts) == 1 {
		return model.ObjectPath(objectID), nil
	}

	instanceID, err := parseID(parts[1])
	if err != nil {
		return model.Path{}, fmt.Errorf("instance: %w", err)
	}
	if len(parts) == 2 {
		return model.InstancePath(objectID, instanceID), nil
	}

	resourceID, err := resolveResource(reg, objectID, parts[2])
	if err != nil {
		return model.Path{}, err
	}
	return model.ResourcePath(objectID, instanceID, resourceID), nil
}

func resolveObject(reg *model.Registry, s string) (uint16, error) {
	if id, err := parseID(s); err == nil {
		return id, nil
	}
	slug := Slug(s)
	for _, id := range reg.ObjectIDs() {
		def, err := reg.ObjectDefinition(id)
		if err == nil && Slug(def.Name) == slug {
			return id, nil
		}
	}
	return 0, fmt.Errorf("%w: object %q", ErrUnknownName, s)
}

func resolveResource(reg *model.Registry, objectID uint16, s string) (uint16, error) {
	if id, err := parseID(s); err == nil {
		return id, nil
	}
	def, err := reg.ObjectDefinition(objectID)
	if err != nil {
		return 0, err
	}
	slug := Slug(s)
	for _, r := range def.Resources {
		if Slug(r.Name) == slug {
			return r.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: resource %q in %s", ErrUnknownName, s, def.Name)
}

func parseID(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an ID", ErrInvalidPath, s)
	}
	return uint16(n), nil
}
