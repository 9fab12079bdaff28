package content

import (
	"fmt"
	"strings"

	"github.com/iotdm/iotdm-go/pkg/model"
)

// Attr is a link attribute. An empty Value renders as a bare parameter.
type Attr struct {
	Key   string
	Value string
}

// Link is one entry of a CoRE link-format document.
type Link struct {
	Target string
	Attrs  []Attr
}

// Attr returns the value of an attribute.
func (l Link) Attr(key string) (string, bool) {
	for _, a := range l.Attrs {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

// FormatLinks renders links as application/link-format.
func FormatLinks(links []Link) []byte {
	var b strings.Builder
	for i, l := range links {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('<')
		b.WriteString(l.Target)
		b.WriteByte('>')
		for _, a := range l.Attrs {
			b.WriteByte(';')
			b.WriteString(a.Key)
			if a.Value != "" {
				b.WriteByte('=')
				b.WriteString(a.Value)
			}
		}
	}
	return []byte(b.String())
}

// ParseLinks parses an application/link-format document. Quoted
// attribute values may not contain commas or semicolons.
func ParseLinks(data []byte) ([]Link, error) {
	s := strings.TrimSpace(string(data))
	if s == "" {
		return nil, nil
	}

	var links []Link
	for _, entry := range strings.Split(s, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ";")
		target := parts[0]
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			return nil, fmt.Errorf("%w: malformed link %q", ErrInvalidPayload, entry)
		}

		l := Link{Target: strings.Trim(target, "<>")}
		for _, p := range parts[1:] {
			key, value, _ := strings.Cut(p, "=")
			l.Attrs = append(l.Attrs, Attr{Key: key, Value: strings.Trim(value, `"`)})
		}
		links = append(links, l)
	}
	return links, nil
}

// InstanceLinks lists every object instance in reg, the payload of a
// Register or Update. An object without instances is listed by itself.
func InstanceLinks(reg *model.Registry) ([]Link, error) {
	objects, err := reg.Children(model.RootPath())
	if err != nil {
		return nil, err
	}
	var links []Link
	for _, obj := range objects {
		instances, err := reg.Children(obj)
		if err != nil {
			return nil, err
		}
		if len(instances) == 0 {
			links = append(links, Link{Target: obj.String()})
			continue
		}
		for _, inst := range instances {
			links = append(links, Link{Target: inst.String()})
		}
	}
	return links, nil
}
