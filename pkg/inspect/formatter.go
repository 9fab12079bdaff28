package inspect

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iotdm/iotdm-go/pkg/model"
)

// Formatter formats inspection output.
type Formatter struct {
	// ShowMetadata includes type, access and units.
	ShowMetadata bool

	// IndentWidth is the number of spaces per indent level.
	IndentWidth int
}

// NewFormatter creates a new Formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		ShowMetadata: true,
		IndentWidth:  2,
	}
}

// Indent returns the content with indentation.
func (f *Formatter) Indent(depth int, content string) string {
	width := f.IndentWidth
	if width == 0 {
		width = 2
	}
	return strings.Repeat(" ", depth*width) + content
}

// FormatValue formats a value for display, including unit conversions.
func (f *Formatter) FormatValue(value any, unit string) string {
	if value == nil {
		return "null"
	}

	switch v := value.(type) {
	case bool:
		if v {
			return "true"
		}
		return "false"
	case string:
		return fmt.Sprintf("%q", v)
	case int64:
		return f.formatInt64WithUnit(v, unit)
	case float64:
		if unit != "" {
			return fmt.Sprintf("%g %s", v, unit)
		}
		return fmt.Sprintf("%g", v)
	case []byte:
		return fmt.Sprintf("0x%x", v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatInt64WithUnit adds a human-readable conversion for common units.
func (f *Formatter) formatInt64WithUnit(v int64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%d", v)
	}

	base := fmt.Sprintf("%d %s", v, unit)
	switch unit {
	case "s":
		if v >= 60 {
			return fmt.Sprintf("%s (%s)", base, time.Duration(v)*time.Second)
		}
	case "mV":
		return fmt.Sprintf("%s (%.2f V)", base, float64(v)/1000.0)
	case "mA":
		return fmt.Sprintf("%s (%.2f A)", base, float64(v)/1000.0)
	case "KB":
		if v >= 1024 {
			return fmt.Sprintf("%s (%.1f MB)", base, float64(v)/1024.0)
		}
	}
	return base
}

// FormatResource formats one resource line: path, name, metadata and
// value. Executable resources have no value.
func (f *Formatter) FormatResource(p model.Path, def model.ResourceDefinition, value any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", p, def.Name)
	if f.ShowMetadata {
		if def.Access.CanExecute() {
			fmt.Fprintf(&b, " [%s]", def.Access)
		} else {
			fmt.Fprintf(&b, " [%s %s]", def.Access, def.Type)
		}
	}
	if !def.Access.CanExecute() {
		fmt.Fprintf(&b, " = %s", f.FormatValue(value, def.Units))
	}
	return b.String()
}

// WriteTree writes p and everything below it, one line per node.
func (f *Formatter) WriteTree(w io.Writer, reg *model.Registry, p model.Path) error {
	return f.writeTree(w, reg, p, 0)
}

func (f *Formatter) writeTree(w io.Writer, reg *model.Registry, p model.Path, depth int) error {
	switch {
	case p.IsResource():
		def, err := reg.Definition(p)
		if err != nil {
			return err
		}
		v, _ := reg.Get(p)
		_, err = fmt.Fprintln(w, f.Indent(depth, f.FormatResource(p, def, v)))
		return err
	case p.IsObject():
		def, err := reg.ObjectDefinition(p.ObjectID)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, f.Indent(depth, fmt.Sprintf("%s %s", p, def.Name)))
	case p.IsInstance():
		fmt.Fprintln(w, f.Indent(depth, p.String()))
	}

	children, err := reg.Children(p)
	if err != nil {
		return err
	}
	if !p.IsRoot() {
		depth++
	}
	for _, child := range children {
		if err := f.writeTree(w, reg, child, depth); err != nil {
			return err
		}
	}
	return nil
}

// WriteValues writes read results, one "path = value" line each.
func (f *Formatter) WriteValues(w io.Writer, reg *model.Registry, values []model.Value) {
	for _, v := range values {
		unit := ""
		if def, err := reg.Definition(v.Path); err == nil {
			unit = def.Units
		}
		fmt.Fprintf(w, "%s = %s\n", v.Path, f.FormatValue(v.Value, unit))
	}
}
