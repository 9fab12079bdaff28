// Package version parses and compares LwM2M enabler versions.
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Current is the enabler version this client registers with.
const Current = "1.1"

// Enabler is a parsed "major.minor" enabler version.
type Enabler struct {
	Major uint16
	Minor uint16
}

// Parse parses a "major.minor" version string.
func Parse(s string) (Enabler, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return Enabler{}, fmt.Errorf("invalid version %q: expected major.minor", s)
	}

	major, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil || parts[0] == "" {
		return Enabler{}, fmt.Errorf("invalid version %q: bad major component", s)
	}

	minor, err := strconv.ParseUint(parts[1], 10, 16)
	if err != nil || parts[1] == "" {
		return Enabler{}, fmt.Errorf("invalid version %q: bad minor component", s)
	}

	return Enabler{Major: uint16(major), Minor: uint16(minor)}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Enabler {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as "major.minor".
func (v Enabler) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compatible returns true if the other version has the same major version.
func (v Enabler) Compatible(other Enabler) bool {
	return v.Major == other.Major
}

// Before reports whether v is older than other.
func (v Enabler) Before(other Enabler) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	return v.Minor < other.Minor
}

// Supported reports whether a peer or catalog version s can be used with
// Current: same major and not newer.
func Supported(s string) error {
	v, err := Parse(s)
	if err != nil {
		return err
	}
	current := MustParse(Current)
	if !current.Compatible(v) || current.Before(v) {
		return fmt.Errorf("version %s is not supported (client implements %s)", v, current)
	}
	return nil
}
