package content

import (
	"testing"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

func sampleValues() []model.Value {
	return []model.Value{
		{Path: model.ResourcePath(3, 0, 0), Type: model.DataTypeString, Value: "Acme"},
		{Path: model.ResourcePath(3, 0, 9), Type: model.DataTypeInteger, Value: int64(87)},
		{Path: model.ResourcePath(3, 0, 20), Type: model.DataTypeBoolean, Value: true},
		{Path: model.ResourcePath(3, 0, 21), Type: model.DataTypeOpaque, Value: []byte{0xde, 0xad}},
	}
}

func TestPackRelativeNames(t *testing.T) {
	pack := Pack(model.InstancePath(3, 0), sampleValues())
	require.Len(t, pack, 4)
	assert.Equal(t, "/3/0/", pack[0].BaseName)
	assert.Equal(t, "0", pack[0].Name)
	assert.Equal(t, "", pack[1].BaseName)
	assert.Equal(t, "9", pack[1].Name)
	require.NotNil(t, pack[1].Value)
	assert.Equal(t, 87.0, *pack[1].Value)

	single := Pack(model.ResourcePath(3, 0, 9), sampleValues()[1:2])
	assert.Equal(t, "/3/0/", single[0].BaseName)
	assert.Equal(t, "9", single[0].Name)

	object := Pack(model.ObjectPath(3), sampleValues()[1:2])
	assert.Equal(t, "/3/", object[0].BaseName)
	assert.Equal(t, "0/9", object[0].Name)

	root := Pack(model.RootPath(), sampleValues()[1:2])
	assert.Equal(t, "", root[0].BaseName)
	assert.Equal(t, "/3/0/9", root[0].Name)

	// Base names without the leading slash are still accepted.
	values, err := Decode(wire.FormatSenMLJSON, model.InstancePath(3, 0), []byte(`[{"bn":"3/0/","n":"9","v":5}]`), nil)
	require.NoError(t, err)
	assert.Equal(t, model.ResourcePath(3, 0, 9), values[0].Path)
}

func TestSenMLFormats(t *testing.T) {
	for _, format := range []struct {
		name string
		cf   message.MediaType
	}{
		{"json", wire.FormatSenMLJSON},
		{"cbor", wire.FormatSenMLCBOR},
	} {
		t.Run(format.name, func(t *testing.T) {
			cf := format.cf
			data, err := Encode(cf, model.InstancePath(3, 0), sampleValues())
			require.NoError(t, err)

			values, err := Decode(cf, model.InstancePath(3, 0), data, nil)
			require.NoError(t, err)
			require.Len(t, values, 4)

			assert.Equal(t, model.ResourcePath(3, 0, 0), values[0].Path)
			assert.Equal(t, "Acme", values[0].Value)
			assert.Equal(t, 87.0, values[1].Value, "numbers decode as float64")
			assert.Equal(t, true, values[2].Value)
			assert.Equal(t, []byte{0xde, 0xad}, values[3].Value)
		})
	}
}

func TestUnpackRejectsForeignRecords(t *testing.T) {
	data := []byte(`[{"bn":"3/0/","n":"9","v":1},{"bn":"4/0/","n":"2","v":-70}]`)
	_, err := Decode(wire.FormatSenMLJSON, model.InstancePath(3, 0), data, nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = Decode(wire.FormatSenMLJSON, model.InstancePath(3, 0), []byte(`not json`), nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestTextFormat(t *testing.T) {
	p := model.ResourcePath(3, 0, 13)
	typeOf := func(model.Path) (model.DataType, error) { return model.DataTypeInteger, nil }

	values, err := Decode(wire.FormatText, p, []byte("1700000000"), typeOf)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), values[0].Value)

	_, err = Decode(wire.FormatText, p, []byte("soon"), typeOf)
	assert.ErrorIs(t, err, model.ErrBadRequest)

	out, err := Encode(wire.FormatText, p, values)
	require.NoError(t, err)
	assert.Equal(t, "1700000000", string(out))

	_, err = Encode(wire.FormatText, model.InstancePath(3, 0), sampleValues())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseTextTypes(t *testing.T) {
	v, err := ParseText(model.DataTypeBoolean, "1")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = ParseText(model.DataTypeFloat, "3.25")
	require.NoError(t, err)
	assert.Equal(t, 3.25, v)

	_, err = ParseText(model.DataTypeNone, "x")
	assert.Error(t, err)
}

func TestLinks(t *testing.T) {
	links := []Link{
		{Target: "/3/0", Attrs: []Attr{{Key: "dim", Value: "2"}}},
		{Target: "/3/0/9", Attrs: []Attr{{Key: "pmin", Value: "5"}, {Key: "pmax", Value: "60"}}},
		{Target: "/3/0/4"},
	}
	doc := FormatLinks(links)
	assert.Equal(t, "</3/0>;dim=2,</3/0/9>;pmin=5;pmax=60,</3/0/4>", string(doc))

	parsed, err := ParseLinks(doc)
	require.NoError(t, err)
	require.Len(t, parsed, 3)
	v, ok := parsed[1].Attr("pmax")
	assert.True(t, ok)
	assert.Equal(t, "60", v)

	_, err = ParseLinks([]byte("/3/0"))
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestInstanceLinks(t *testing.T) {
	reg := model.NewRegistry()
	require.NoError(t, reg.CreateObject(model.ObjectDefinition{ID: 3, Name: "Device"}))
	require.NoError(t, reg.CreateObject(model.ObjectDefinition{ID: 4, Name: "Connectivity", Multiple: true}))
	require.NoError(t, reg.CreateObject(model.ObjectDefinition{ID: 5, Name: "Firmware"}))
	require.NoError(t, reg.CreateInstance(3, 0))
	require.NoError(t, reg.CreateInstance(4, 0))
	require.NoError(t, reg.CreateInstance(4, 1))

	links, err := InstanceLinks(reg)
	require.NoError(t, err)
	assert.Equal(t, "</3/0>,</4/0>,</4/1>,</5>", string(FormatLinks(links)))
}
