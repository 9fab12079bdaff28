package inspect

import (
	"errors"
	"testing"

	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/objects"
)

func testRegistry(t *testing.T) *model.Registry {
	t.Helper()
	reg := model.NewRegistry()
	if err := objects.CreateDefaultObjects(reg, nil, objects.Options{SerialNumber: "SN-1"}); err != nil {
		t.Fatalf("CreateDefaultObjects: %v", err)
	}
	return reg
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Battery Level":               "battery-level",
		"LwM2M Server":                "lwm2m-server",
		"Supported Binding and Modes": "supported-binding-and-modes",
		"  PkgVersion ":               "pkgversion",
		"Memory Free (KB)":            "memory-free-kb",
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolvePath(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		input string
		want  model.Path
	}{
		{"/3/0/9", model.ResourcePath(3, 0, 9)},
		{"3/0/9", model.ResourcePath(3, 0, 9)},
		{"device/0/battery-level", model.ResourcePath(3, 0, 9)},
		{"Device/0/Battery Level", model.ResourcePath(3, 0, 9)},
		{"3/0/battery-level", model.ResourcePath(3, 0, 9)},
		{"lwm2m-server/0/lifetime", model.ResourcePath(1, 0, 1)},
		{"device/0", model.InstancePath(3, 0)},
		{"/3", model.ObjectPath(3)},
		{"/", model.RootPath()},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ResolvePath(reg, tt.input)
			if err != nil {
				t.Fatalf("ResolvePath(%q): %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ResolvePath(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestResolvePathErrors(t *testing.T) {
	reg := testRegistry(t)

	tests := []struct {
		input string
		want  error
	}{
		{"", ErrEmptyPath},
		{"3/0/9/1", ErrInvalidPath},
		{"3//9", ErrInvalidPath},
		{"3/0/", ErrInvalidPath},
		{"device/first", ErrInvalidPath},
		{"toaster", ErrUnknownName},
		{"3/0/nope", ErrUnknownName},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := ResolvePath(reg, tt.input)
			if !errors.Is(err, tt.want) {
				t.Errorf("ResolvePath(%q) error = %v, want %v", tt.input, err, tt.want)
			}
		})
	}
}
