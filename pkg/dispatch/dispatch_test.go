package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iotdm/iotdm-go/pkg/content"
	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/objects"
	"github.com/iotdm/iotdm-go/pkg/observe"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

var now = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	reg *model.Registry
	obs *observe.Manager
	d   *Dispatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := model.NewRegistry()
	require.NoError(t, objects.CreateDefaultObjects(reg, nil, objects.Options{SerialNumber: "SN-1"}))
	obs := observe.NewManager()
	return &fixture{reg: reg, obs: obs, d: New(reg, obs, DefaultConfig())}
}

func request(t *testing.T, op wire.Operation, path string, query ...string) *wire.Message {
	t.Helper()
	req, err := wire.NewRequest(op, path)
	require.NoError(t, err)
	req.Query = query
	return req
}

func (f *fixture) handle(req *wire.Message) *wire.Message {
	return f.d.Handle(context.Background(), req, now)
}

func decodeValues(t *testing.T, resp *wire.Message, base model.Path) []model.Value {
	t.Helper()
	values, err := content.Decode(resp.ContentFormat, base, resp.Payload, nil)
	require.NoError(t, err)
	return values
}

func TestReadResource(t *testing.T) {
	f := newFixture(t)
	req := request(t, wire.OpRead, "/3/0/2")

	resp := f.handle(req)
	assert.Equal(t, codes.Content, resp.Code)
	assert.Equal(t, req.Token, resp.Token)
	assert.Equal(t, wire.FormatSenMLJSON, resp.ContentFormat)

	values := decodeValues(t, resp, model.ResourcePath(3, 0, 2))
	require.Len(t, values, 1)
	assert.Equal(t, "SN-1", values[0].Value)
}

func TestReadAcceptText(t *testing.T) {
	f := newFixture(t)
	req := request(t, wire.OpRead, "/3/0/9")
	text := wire.FormatText
	req.Accept = &text

	resp := f.handle(req)
	assert.Equal(t, codes.Content, resp.Code)
	assert.Equal(t, wire.FormatText, resp.ContentFormat)
	assert.Equal(t, "100", string(resp.Payload))

	container := request(t, wire.OpRead, "/3/0")
	container.Accept = &text
	assert.Equal(t, codes.NotAcceptable, f.handle(container).Code)
}

func TestReadInstanceSkipsUnreadable(t *testing.T) {
	f := newFixture(t)
	resp := f.handle(request(t, wire.OpRead, "/5/0"))
	require.Equal(t, codes.Content, resp.Code)

	for _, v := range decodeValues(t, resp, model.InstancePath(5, 0)) {
		assert.NotEqual(t, model.ResourcePath(5, 0, 0), v.Path, "write-only package is not read")
		assert.NotEqual(t, model.ResourcePath(5, 0, 2), v.Path, "executable is not read")
	}
}

func TestReadErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		path string
		want codes.Code
	}{
		{"/3/0/99", codes.NotFound},
		{"/42", codes.NotFound},
		{"/3/7", codes.NotFound},
		{"/5/0/0", codes.MethodNotAllowed},
		{"/3/0/4", codes.MethodNotAllowed},
		{"/3/x", codes.BadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.path, func(t *testing.T) {
			resp := f.handle(request(t, wire.OpRead, tc.path))
			assert.Equal(t, tc.want, resp.Code)
			assert.Equal(t, wire.FormatText, resp.ContentFormat)
			assert.NotEmpty(t, resp.Payload, "diagnostic payload")
		})
	}
}

func TestWriteText(t *testing.T) {
	f := newFixture(t)
	req := request(t, wire.OpWrite, "/1/0/1")
	req.ContentFormat = wire.FormatText
	req.Payload = []byte("300")

	resp := f.handle(req)
	assert.Equal(t, codes.Changed, resp.Code)
	v, err := f.reg.Get(model.ResourcePath(1, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(300), v)
}

func TestWriteInstanceIsAtomic(t *testing.T) {
	f := newFixture(t)

	good := request(t, wire.OpWrite, "/1/0")
	good.ContentFormat = wire.FormatSenMLJSON
	good.Payload = []byte(`[{"bn":"1/0/","n":"2","v":5},{"n":"3","v":120}]`)
	require.Equal(t, codes.Changed, f.handle(good).Code)

	pmin, pmax, ok := objects.ServerPeriods(f.reg)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, pmin)
	assert.Equal(t, 120*time.Second, pmax)

	// The second record is out of range, so neither is applied.
	bad := request(t, wire.OpWrite, "/1/0")
	bad.ContentFormat = wire.FormatSenMLJSON
	bad.Payload = []byte(`[{"bn":"1/0/","n":"2","v":7},{"n":"3","v":0}]`)
	assert.Equal(t, codes.BadRequest, f.handle(bad).Code)

	pmin, _, _ = objects.ServerPeriods(f.reg)
	assert.Equal(t, 5*time.Second, pmin)
}

func TestWriteErrors(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name    string
		path    string
		format  message.MediaType
		payload string
		want    codes.Code
	}{
		{"read-only", "/3/0/0", wire.FormatText, "Other", codes.MethodNotAllowed},
		{"out of range", "/1/0/2", wire.FormatText, "-1", codes.BadRequest},
		{"wrong type", "/1/0/1", wire.FormatText, "soon", codes.BadRequest},
		{"object target", "/1", wire.FormatSenMLJSON, `[{"n":"1/0/1","v":1}]`, codes.MethodNotAllowed},
		{"missing", "/1/0/99", wire.FormatText, "1", codes.NotFound},
		{"unknown format", "/1/0/1", message.MediaType(9999), "1", codes.UnsupportedMediaType},
		{"foreign record", "/1/0", wire.FormatSenMLJSON, `[{"n":"3/0/13","v":1}]`, codes.BadRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := request(t, wire.OpWrite, tc.path)
			req.ContentFormat = tc.format
			req.Payload = []byte(tc.payload)
			assert.Equal(t, tc.want, f.handle(req).Code)
		})
	}
}

func TestExecute(t *testing.T) {
	f := newFixture(t)
	var gotArgs string
	require.NoError(t, f.reg.SetExecuteHandler(model.ResourcePath(3, 0, 4), func(_ context.Context, _ model.Path, args string) error {
		gotArgs = args
		return nil
	}))
	require.NoError(t, f.reg.SetExecuteHandler(model.ResourcePath(3, 0, 5), func(context.Context, model.Path, string) error {
		return errors.New("flash locked")
	}))

	req := request(t, wire.OpExecute, "/3/0/4")
	req.Payload = []byte("0='now'")
	assert.Equal(t, codes.Changed, f.handle(req).Code)
	assert.Equal(t, "0='now'", gotArgs)

	assert.Equal(t, codes.InternalServerError, f.handle(request(t, wire.OpExecute, "/3/0/5")).Code)
	assert.Equal(t, codes.MethodNotAllowed, f.handle(request(t, wire.OpExecute, "/3/0/0")).Code)
	assert.Equal(t, codes.MethodNotAllowed, f.handle(request(t, wire.OpExecute, "/3/0")).Code)
}

func TestObserveWithAttributes(t *testing.T) {
	f := newFixture(t)
	req := request(t, wire.OpObserve, "/3/0/9", "pmin=5", "pmax=60")

	resp := f.handle(req)
	require.Equal(t, codes.Content, resp.Code)
	require.NotNil(t, resp.Observe)
	assert.Equal(t, uint32(0), *resp.Observe)
	values := decodeValues(t, resp, model.ResourcePath(3, 0, 9))
	assert.Equal(t, 100.0, values[0].Value)

	reg, ok := f.obs.Get(model.ResourcePath(3, 0, 9))
	require.True(t, ok)
	assert.Equal(t, req.Token, reg.Token)
	assert.Equal(t, 5*time.Second, reg.MinPeriod)
	assert.Equal(t, 60*time.Second, reg.MaxPeriod)
	assert.Equal(t, now, reg.LastNotified())
}

func TestObservePeriodsFallBackToServerObject(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.reg.Set(model.ResourcePath(1, 0, objects.ServerDefaultMinPeriod), int64(10)))
	require.NoError(t, f.reg.Set(model.ResourcePath(1, 0, objects.ServerDefaultMaxPeriod), int64(300)))

	require.Equal(t, codes.Content, f.handle(request(t, wire.OpObserve, "/3/0/9", "pmax=600")).Code)
	reg, ok := f.obs.Get(model.ResourcePath(3, 0, 9))
	require.True(t, ok)
	assert.Equal(t, 10*time.Second, reg.MinPeriod)
	assert.Equal(t, 600*time.Second, reg.MaxPeriod)
}

func TestObservePeriodsFallBackToConfig(t *testing.T) {
	reg := model.NewRegistry()
	require.NoError(t, reg.CreateObject(model.ObjectDefinition{ID: 3303, Resources: []model.ResourceDefinition{
		{ID: 5700, Type: model.DataTypeFloat, Access: model.AccessRead},
	}}))
	require.NoError(t, reg.CreateInstance(3303, 0))
	obs := observe.NewManager()
	d := New(reg, obs, Config{DefaultMinPeriod: 2 * time.Second, DefaultMaxPeriod: 30 * time.Second})

	resp := d.Handle(context.Background(), request(t, wire.OpObserve, "/3303/0/5700"), now)
	require.Equal(t, codes.Content, resp.Code)
	assert.Equal(t, wire.FormatSenMLJSON, resp.ContentFormat)
	r, ok := obs.Get(model.ResourcePath(3303, 0, 5700))
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, r.MinPeriod)
	assert.Equal(t, 30*time.Second, r.MaxPeriod)
}

func TestObserveErrors(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, codes.BadRequest, f.handle(request(t, wire.OpObserve, "/3/0/9", "pmin=60", "pmax=5")).Code)
	assert.Equal(t, codes.BadRequest, f.handle(request(t, wire.OpObserve, "/3/0/9", "pmin=soon")).Code)
	assert.Equal(t, codes.NotFound, f.handle(request(t, wire.OpObserve, "/3/0/99")).Code)
	assert.Equal(t, codes.MethodNotAllowed, f.handle(request(t, wire.OpObserve, "/5/0/0")).Code)
	assert.Equal(t, 0, f.obs.Count())

	limited := New(f.reg, observe.NewManagerWithConfig(observe.Config{MaxObservations: 1}), DefaultConfig())
	require.Equal(t, codes.Content, limited.Handle(context.Background(), request(t, wire.OpObserve, "/3/0/9"), now).Code)
	assert.Equal(t, codes.ServiceUnavailable, limited.Handle(context.Background(), request(t, wire.OpObserve, "/3/0/0"), now).Code)
}

func TestCancelObserve(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, codes.Content, f.handle(request(t, wire.OpObserve, "/3/0/9")).Code)
	require.Equal(t, 1, f.obs.Count())

	resp := f.handle(request(t, wire.OpCancelObserve, "/3/0/9"))
	assert.Equal(t, codes.Content, resp.Code)
	assert.Nil(t, resp.Observe)
	assert.Equal(t, 0, f.obs.Count())

	// Cancelling an absent observation still answers with the value.
	assert.Equal(t, codes.Content, f.handle(request(t, wire.OpCancelObserve, "/3/0/9")).Code)
}

func TestDiscover(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, codes.Content, f.handle(request(t, wire.OpObserve, "/1/0/1", "pmin=5", "pmax=60")).Code)

	resp := f.handle(request(t, wire.OpDiscover, "/1/0"))
	require.Equal(t, codes.Content, resp.Code)
	assert.Equal(t, wire.FormatLinkFormat, resp.ContentFormat)

	links, err := content.ParseLinks(resp.Payload)
	require.NoError(t, err)
	require.NotEmpty(t, links)
	assert.Equal(t, "/1/0", links[0].Target)

	var lifetime content.Link
	for _, l := range links {
		if l.Target == "/1/0/1" {
			lifetime = l
		}
	}
	pmin, ok := lifetime.Attr("pmin")
	assert.True(t, ok)
	assert.Equal(t, "5", pmin)
	pmax, _ := lifetime.Attr("pmax")
	assert.Equal(t, "60", pmax)

	root := f.handle(request(t, wire.OpDiscover, "/"))
	assert.Equal(t, "</1/0>,</3/0>,</4/0>,</5/0>", string(root.Payload))

	assert.Equal(t, codes.NotFound, f.handle(request(t, wire.OpDiscover, "/77")).Code)
}

func TestUnsupportedOperation(t *testing.T) {
	f := newFixture(t)
	resp := f.handle(request(t, wire.OpRegister, "/rd"))
	assert.Equal(t, codes.MethodNotAllowed, resp.Code)
	assert.NotEmpty(t, resp.Token)
}

func TestCode(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("wrapped: %w", model.ErrNotFound), codes.NotFound},
		{model.ErrAccessDenied, codes.MethodNotAllowed},
		{model.ErrOutOfRange, codes.BadRequest},
		{content.ErrInvalidPayload, codes.BadRequest},
		{content.ErrUnsupportedFormat, codes.UnsupportedMediaType},
		{observe.ErrTooManyObservations, codes.ServiceUnavailable},
		{model.ErrExecuteFailed, codes.InternalServerError},
		{errors.New("boom"), codes.InternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, Code(tc.err), "%v", tc.err)
	}
}
