package coap

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotdm/iotdm-go/pkg/wire"
)

func newIncoming(t *testing.T, code codes.Code, path string) *pool.Message {
	t.Helper()
	m := pool.NewMessage(context.Background())
	m.SetCode(code)
	m.SetToken(message.Token{0x01, 0x02})
	require.NoError(t, m.SetPath(path))
	return m
}

func TestRequestFromCoAPOperations(t *testing.T) {
	tests := []struct {
		name  string
		code  codes.Code
		path  string
		setup func(*pool.Message)
		want  wire.Operation
	}{
		{name: "read", code: codes.GET, path: "/3/0/0", want: wire.OpRead},
		{
			name:  "observe",
			code:  codes.GET,
			path:  "/3/0/13",
			setup: func(m *pool.Message) { m.SetObserve(wire.ObserveRegister) },
			want:  wire.OpObserve,
		},
		{
			name:  "cancel observe",
			code:  codes.GET,
			path:  "/3/0/13",
			setup: func(m *pool.Message) { m.SetObserve(wire.ObserveDeregister) },
			want:  wire.OpCancelObserve,
		},
		{
			name:  "discover",
			code:  codes.GET,
			path:  "/3",
			setup: func(m *pool.Message) { m.SetOptionUint32(message.Accept, uint32(wire.FormatLinkFormat)) },
			want:  wire.OpDiscover,
		},
		{name: "write", code: codes.PUT, path: "/1/0/1", want: wire.OpWrite},
		{name: "execute", code: codes.POST, path: "/3/0/4", want: wire.OpExecute},
		{name: "partial write", code: codes.POST, path: "/1/0", want: wire.OpWrite},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := newIncoming(t, tc.code, tc.path)
			if tc.setup != nil {
				tc.setup(in)
			}
			got, err := requestFromCoAP(in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got.Operation)
			assert.Equal(t, tc.path, got.Path)
			assert.Equal(t, wire.KindRequest, got.Kind)
			assert.Equal(t, message.Token{0x01, 0x02}, got.Token)
		})
	}
}

func TestRequestFromCoAPCarriesQueryAndBody(t *testing.T) {
	in := newIncoming(t, codes.PUT, "/1/0/1")
	in.AddQuery("pmin=5")
	in.AddQuery("pmax=60")
	in.SetContentFormat(wire.FormatText)
	in.SetBody(bytes.NewReader([]byte("300")))

	got, err := requestFromCoAP(in)
	require.NoError(t, err)
	assert.Equal(t, []string{"pmin=5", "pmax=60"}, got.Query)
	assert.Equal(t, wire.FormatText, got.ContentFormat)
	assert.Equal(t, []byte("300"), got.Payload)
	assert.Nil(t, got.Accept)
}

func TestRequestFromCoAPRejectsDelete(t *testing.T) {
	in := newIncoming(t, codes.DELETE, "/3/0")
	_, err := requestFromCoAP(in)
	assert.True(t, errors.Is(err, errUnsupportedMethod))
}

func TestRequestToCoAP(t *testing.T) {
	reg, err := wire.NewRequest(wire.OpRegister, "/rd")
	require.NoError(t, err)
	reg.Query = []string{"ep=dev-1", "lt=300"}
	reg.ContentFormat = wire.FormatLinkFormat
	reg.Payload = []byte("</1/0>,</3/0>")

	out := pool.NewMessage(context.Background())
	require.NoError(t, requestToCoAP(reg, out))
	assert.Equal(t, codes.POST, out.Code())
	assert.Equal(t, reg.Token, out.Token())
	assert.Equal(t, []string{"rd"}, optionStrings(out.Options(), message.URIPath))
	assert.Equal(t, []string{"ep=dev-1", "lt=300"}, optionStrings(out.Options(), message.URIQuery))
	cf, err := out.ContentFormat()
	require.NoError(t, err)
	assert.Equal(t, wire.FormatLinkFormat, cf)

	dereg, err := wire.NewRequest(wire.OpDeregister, "/rd/5a3f")
	require.NoError(t, err)
	out = pool.NewMessage(context.Background())
	require.NoError(t, requestToCoAP(dereg, out))
	assert.Equal(t, codes.DELETE, out.Code())
	assert.Equal(t, []string{"rd", "5a3f"}, optionStrings(out.Options(), message.URIPath))

	read, err := wire.NewRequest(wire.OpRead, "/3/0/0")
	require.NoError(t, err)
	assert.True(t, errors.Is(requestToCoAP(read, pool.NewMessage(context.Background())), wire.ErrInvalidOp))
}

func TestResponseFromCoAPLocation(t *testing.T) {
	resp := pool.NewMessage(context.Background())
	resp.SetCode(codes.Created)
	resp.AddOptionString(message.LocationPath, "rd")
	resp.AddOptionString(message.LocationPath, "5a3f")

	got := responseFromCoAP(message.Token{0x09}, resp)
	assert.Equal(t, wire.KindResponse, got.Kind)
	assert.Equal(t, codes.Created, got.Code)
	assert.Equal(t, "/rd/5a3f", got.Location)
	assert.Equal(t, message.Token{0x09}, got.Token)

	plain := pool.NewMessage(context.Background())
	plain.SetCode(codes.Changed)
	assert.Empty(t, responseFromCoAP(message.Token{0x09}, plain).Location)
}

func TestNotifyToCoAP(t *testing.T) {
	n := wire.NewNotify(message.Token{0x07}, 3, wire.FormatSenMLJSON, []byte(`[{"n":"/3/0/13","v":1}]`))
	out := pool.NewMessage(context.Background())
	notifyToCoAP(n, out)

	assert.Equal(t, codes.Content, out.Code())
	obs, err := out.Observe()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), obs)
	body, err := out.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, n.Payload, body)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Addr: "localhost:5684"}.withDefaults()
	assert.Equal(t, DefaultReplyTimeout, cfg.ReplyTimeout)
	assert.Equal(t, DefaultRequestTimeout, cfg.RequestTimeout)
}
