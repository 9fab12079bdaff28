// Package content encodes registry values into LWM2M payload formats.
//
// Resource values travel as SenML (RFC 8428) in its JSON or CBOR
// representation; discovery and registration payloads use the CoRE link
// format (RFC 6690).
package content

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	senml "github.com/farshidtz/senml/v2"
	senmlcodec "github.com/farshidtz/senml/v2/codec"
	"github.com/plgd-dev/go-coap/v3/message"

	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

// Content errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported content format")
	ErrInvalidPayload    = errors.New("invalid payload")
)

// Supported reports whether values can be carried in format.
func Supported(format message.MediaType) bool {
	switch format {
	case wire.FormatSenMLJSON, wire.FormatSenMLCBOR, wire.FormatText:
		return true
	default:
		return false
	}
}

// Encode serializes values read at base.
func Encode(format message.MediaType, base model.Path, values []model.Value) ([]byte, error) {
	switch format {
	case wire.FormatSenMLJSON:
		return senmlcodec.EncodeJSON(Pack(base, values))
	case wire.FormatSenMLCBOR:
		return senmlcodec.EncodeCBOR(Pack(base, values))
	case wire.FormatText:
		if len(values) != 1 {
			return nil, fmt.Errorf("%w: text carries a single resource, got %d values", ErrUnsupportedFormat, len(values))
		}
		return []byte(FormatText(values[0].Value)), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

// Decode parses a write payload targeting base. typeOf resolves the
// declared type of a resource and is only consulted for text payloads.
func Decode(format message.MediaType, base model.Path, payload []byte, typeOf func(model.Path) (model.DataType, error)) ([]model.Value, error) {
	switch format {
	case wire.FormatSenMLJSON:
		pack, err := senmlcodec.DecodeJSON(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return Unpack(base, pack)
	case wire.FormatSenMLCBOR:
		pack, err := senmlcodec.DecodeCBOR(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
		return Unpack(base, pack)
	case wire.FormatText:
		if !base.IsResource() {
			return nil, fmt.Errorf("%w: text payload needs a resource path", ErrInvalidPayload)
		}
		typ, err := typeOf(base)
		if err != nil {
			return nil, err
		}
		v, err := ParseText(typ, string(payload))
		if err != nil {
			return nil, err
		}
		return []model.Value{{Path: base, Type: typ, Value: v}}, nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

// Pack builds a SenML pack. The first record carries the base name of
// the target container, e.g. "/3/0/"; record names are relative to it.
// Under the root, names are absolute paths.
func Pack(base model.Path, values []model.Value) senml.Pack {
	if base.IsResource() {
		base = base.Parent()
	}
	prefix := ""
	if !base.IsRoot() {
		prefix = base.String() + "/"
	}

	pack := make(senml.Pack, 0, len(values))
	for i, v := range values {
		rec := senml.Record{Name: strings.TrimPrefix(v.Path.String(), prefix)}
		if i == 0 {
			rec.BaseName = prefix
		}
		setRecordValue(&rec, v.Value)
		pack = append(pack, rec)
	}
	return pack
}

func setRecordValue(rec *senml.Record, value any) {
	switch v := value.(type) {
	case int64:
		f := float64(v)
		rec.Value = &f
	case float64:
		rec.Value = &v
	case string:
		rec.StringValue = v
	case bool:
		rec.BoolValue = &v
	case []byte:
		rec.DataValue = base64.RawURLEncoding.EncodeToString(v)
	}
}

// Unpack resolves record names against the base names in the pack and
// checks that every record lies below target.
func Unpack(target model.Path, pack senml.Pack) ([]model.Value, error) {
	values := make([]model.Value, 0, len(pack))
	var baseName string

	for _, rec := range pack {
		if rec.BaseName != "" {
			baseName = rec.BaseName
		}
		name := baseName + rec.Name
		if name == "" {
			name = target.String()
		}

		p, err := model.ParsePath(name)
		if err != nil {
			return nil, fmt.Errorf("%w: record name %q", ErrInvalidPayload, name)
		}
		if !p.IsResource() || !target.Contains(p) {
			return nil, fmt.Errorf("%w: record %s outside %s", ErrInvalidPayload, p, target)
		}

		v, err := recordValue(rec)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		values = append(values, model.Value{Path: p, Value: v})
	}

	if len(values) == 0 {
		return nil, fmt.Errorf("%w: empty pack", ErrInvalidPayload)
	}
	return values, nil
}

func recordValue(rec senml.Record) (any, error) {
	switch {
	case rec.Value != nil:
		return *rec.Value, nil
	case rec.BoolValue != nil:
		return *rec.BoolValue, nil
	case rec.DataValue != "":
		b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(rec.DataValue, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: vd is not base64url", ErrInvalidPayload)
		}
		return b, nil
	case rec.StringValue != "":
		return rec.StringValue, nil
	default:
		// An empty string value is indistinguishable from an absent one.
		return "", nil
	}
}

// FormatText renders a value in the LWM2M plain text format.
func FormatText(value any) string {
	switch v := value.(type) {
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	case []byte:
		return base64.StdEncoding.EncodeToString(v)
	case string:
		return v
	default:
		return ""
	}
}

// ParseText parses a plain text value of the given type.
func ParseText(typ model.DataType, s string) (any, error) {
	s = strings.TrimSpace(s)
	switch typ {
	case model.DataTypeInteger:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", model.ErrValueType, s)
		}
		return n, nil
	case model.DataTypeFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a float", model.ErrValueType, s)
		}
		return f, nil
	case model.DataTypeBoolean:
		switch s {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		}
		return nil, fmt.Errorf("%w: %q is not a boolean", model.ErrValueType, s)
	case model.DataTypeOpaque:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("%w: opaque text must be base64", model.ErrValueType)
		}
		return b, nil
	case model.DataTypeString:
		return s, nil
	default:
		return nil, fmt.Errorf("%w: %s has no text form", model.ErrValueType, typ)
	}
}
