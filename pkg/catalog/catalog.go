// Package catalog loads LWM2M object definitions from YAML.
//
// The built-in catalog is embedded and covers the objects a client
// creates at startup. Deployments may load their own catalog file to add
// objects or change default values without recompiling.
package catalog

import (
	"embed"
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/version"
)

//go:embed objects/*.yaml
var objectsFS embed.FS

// DefaultFile is the embedded catalog used when none is configured.
const DefaultFile = "objects/default.yaml"

// Well-known object IDs from the OMA registry.
const (
	ObjectSecurity               uint16 = 0
	ObjectServer                 uint16 = 1
	ObjectDevice                 uint16 = 3
	ObjectConnectivityMonitoring uint16 = 4
	ObjectFirmwareUpdate         uint16 = 5
)

// RawObjectDef is an object definition as written in YAML.
type RawObjectDef struct {
	ID          uint16           `yaml:"id"`
	Name        string           `yaml:"name"`
	Multiple    bool             `yaml:"multiple"`
	Mandatory   bool             `yaml:"mandatory"`
	Description string           `yaml:"description"`
	Resources   []RawResourceDef `yaml:"resources"`
}

// RawResourceDef is a resource definition as written in YAML.
type RawResourceDef struct {
	ID          uint16 `yaml:"id"`
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`   // "integer", "float", "string", "boolean", "opaque", "none"
	Access      string `yaml:"access"` // "R", "W", "RW", "E"
	Mandatory   bool   `yaml:"mandatory"`
	Default     any    `yaml:"default"`
	Min         any    `yaml:"min"`
	Max         any    `yaml:"max"`
	Enum        []any  `yaml:"enum"`
	Units       string `yaml:"units"`
	Description string `yaml:"description"`
}

// Catalog is an ordered set of object definitions.
type Catalog struct {
	Version string         `yaml:"version"`
	Objects []RawObjectDef `yaml:"objects"`
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
	defaultErr  error
)

// Default returns the embedded catalog. The result is shared and must
// not be modified.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		data, err := objectsFS.ReadFile(DefaultFile)
		if err != nil {
			defaultErr = fmt.Errorf("reading embedded catalog: %w", err)
			return
		}
		defaultCat, defaultErr = Parse(data)
	})
	return defaultCat, defaultErr
}

// LoadFile reads a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	sort.Slice(c.Objects, func(i, j int) bool { return c.Objects[i].ID < c.Objects[j].ID })
	return &c, nil
}

// Validate checks the catalog version, that IDs are unique and that every
// type and access string is known. An empty version is accepted.
func (c *Catalog) Validate() error {
	if c.Version != "" {
		if err := version.Supported(c.Version); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}
	seen := make(map[uint16]bool, len(c.Objects))
	for _, o := range c.Objects {
		if seen[o.ID] {
			return fmt.Errorf("object %d defined twice", o.ID)
		}
		seen[o.ID] = true
		if _, err := o.Definition(); err != nil {
			return err
		}
	}
	return nil
}

// Object returns the raw definition of an object.
func (c *Catalog) Object(id uint16) (RawObjectDef, bool) {
	for _, o := range c.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return RawObjectDef{}, false
}

// Definitions converts every object to its registry definition.
func (c *Catalog) Definitions() ([]model.ObjectDefinition, error) {
	defs := make([]model.ObjectDefinition, 0, len(c.Objects))
	for _, o := range c.Objects {
		d, err := o.Definition()
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, nil
}

// Definition converts the raw object to a registry definition.
func (o RawObjectDef) Definition() (model.ObjectDefinition, error) {
	def := model.ObjectDefinition{
		ID:        o.ID,
		Name:      o.Name,
		Multiple:  o.Multiple,
		Mandatory: o.Mandatory,
	}

	seen := make(map[uint16]bool, len(o.Resources))
	for _, r := range o.Resources {
		if seen[r.ID] {
			return model.ObjectDefinition{}, fmt.Errorf("object %d: resource %d defined twice", o.ID, r.ID)
		}
		seen[r.ID] = true

		rd, err := r.Definition()
		if err != nil {
			return model.ObjectDefinition{}, fmt.Errorf("object %d resource %d: %w", o.ID, r.ID, err)
		}
		def.Resources = append(def.Resources, rd)
	}
	return def, nil
}

// Definition converts the raw resource to a registry definition.
func (r RawResourceDef) Definition() (model.ResourceDefinition, error) {
	access, err := model.ParseAccess(r.Access)
	if err != nil {
		return model.ResourceDefinition{}, err
	}

	typ := model.DataTypeNone
	if r.Type != "" {
		if typ, err = model.ParseDataType(r.Type); err != nil {
			return model.ResourceDefinition{}, err
		}
	}
	if access.CanExecute() && typ != model.DataTypeNone {
		return model.ResourceDefinition{}, fmt.Errorf("executable resource must have type none, got %s", typ)
	}
	if !access.CanExecute() && typ == model.DataTypeNone {
		return model.ResourceDefinition{}, fmt.Errorf("resource with access %s needs a type", access)
	}

	return model.ResourceDefinition{
		ID:          r.ID,
		Name:        r.Name,
		Type:        typ,
		Access:      access,
		Mandatory:   r.Mandatory,
		Default:     r.Default,
		MinValue:    r.Min,
		MaxValue:    r.Max,
		Enum:        r.Enum,
		Units:       r.Units,
		Description: r.Description,
	}, nil
}
