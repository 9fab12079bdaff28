// Package dispatch turns server requests into registry operations.
//
// Every request yields exactly one response carrying the request token.
// Failures are mapped to CoAP response codes:
//
//	model.ErrNotFound              4.04 Not Found
//	model.ErrAccessDenied          4.05 Method Not Allowed
//	model.ErrBadRequest            4.00 Bad Request
//	content.ErrInvalidPayload      4.00 Bad Request
//	content.ErrUnsupportedFormat   4.15 Unsupported Content-Format (4.06 on reads)
//	observe.ErrTooManyObservations 5.03 Service Unavailable
//	anything else                  5.00 Internal Server Error
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/iotdm/iotdm-go/pkg/content"
	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/objects"
	"github.com/iotdm/iotdm-go/pkg/observe"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

// Config holds dispatcher configuration.
type Config struct {
	// ContentFormat is used for READ and OBSERVE responses when the
	// request does not ask for a format.
	ContentFormat message.MediaType

	// DefaultMinPeriod and DefaultMaxPeriod apply when neither the
	// request nor the Server object supplies observation periods.
	DefaultMinPeriod time.Duration
	DefaultMaxPeriod time.Duration

	Logger *slog.Logger
}

// DefaultConfig returns the default dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		ContentFormat:    wire.FormatSenMLJSON,
		DefaultMinPeriod: observe.DefaultMinPeriod,
		DefaultMaxPeriod: observe.DefaultMaxPeriod,
	}
}

// Dispatcher handles the device management operations of one Channel.
type Dispatcher struct {
	reg          *model.Registry
	observations *observe.Manager
	config       Config
}

// New creates a dispatcher over reg. Observations are recorded in obs.
func New(reg *model.Registry, obs *observe.Manager, config Config) *Dispatcher {
	if config.ContentFormat == 0 || !content.Supported(config.ContentFormat) {
		config.ContentFormat = wire.FormatSenMLJSON
	}
	return &Dispatcher{reg: reg, observations: obs, config: config}
}

// Handle processes one request and returns its response. now is the time
// the request was taken off the link; it starts an observation's periods.
func (d *Dispatcher) Handle(ctx context.Context, req *wire.Message, now time.Time) *wire.Message {
	if req.Kind != wire.KindRequest || !req.Operation.IsServerInitiated() {
		return d.fail(req, fmt.Errorf("%w: %s", errUnsupportedOperation, req.Operation))
	}

	path, err := model.ParsePath(req.Path)
	if err != nil {
		return d.fail(req, err)
	}

	var resp *wire.Message
	switch req.Operation {
	case wire.OpRead:
		resp = d.handleRead(req, path)
	case wire.OpWrite:
		resp = d.handleWrite(req, path)
	case wire.OpExecute:
		resp = d.handleExecute(ctx, req, path)
	case wire.OpObserve:
		resp = d.handleObserve(req, path, now)
	case wire.OpCancelObserve:
		resp = d.handleCancelObserve(req, path)
	case wire.OpDiscover:
		resp = d.handleDiscover(req, path)
	}

	if d.config.Logger != nil {
		d.config.Logger.Debug("dispatch: handled request",
			"operation", req.Operation,
			"path", path,
			"code", resp.Code)
	}
	return resp
}

var errUnsupportedOperation = errors.New("unsupported operation")

func (d *Dispatcher) handleRead(req *wire.Message, path model.Path) *wire.Message {
	values, err := d.reg.Read(path)
	if err != nil {
		return d.fail(req, err)
	}
	return d.content(req, path, values, codes.Content)
}

func (d *Dispatcher) handleWrite(req *wire.Message, path model.Path) *wire.Message {
	if path.IsRoot() || path.IsObject() {
		return d.fail(req, fmt.Errorf("%w: write to %s", model.ErrAccessDenied, path))
	}
	if !d.reg.Exists(path) {
		return d.fail(req, fmt.Errorf("%w: %s", model.ErrNotFound, path))
	}

	values, err := content.Decode(req.ContentFormat, path, req.Payload, d.typeOf)
	if err != nil {
		return d.fail(req, err)
	}
	if err := d.reg.WriteValues(values); err != nil {
		return d.fail(req, err)
	}
	return wire.NewResponse(req, codes.Changed)
}

func (d *Dispatcher) typeOf(p model.Path) (model.DataType, error) {
	def, err := d.reg.Definition(p)
	if err != nil {
		return model.DataTypeNone, err
	}
	return def.Type, nil
}

func (d *Dispatcher) handleExecute(ctx context.Context, req *wire.Message, path model.Path) *wire.Message {
	if !path.IsResource() {
		return d.fail(req, fmt.Errorf("%w: execute on %s", model.ErrAccessDenied, path))
	}
	if err := d.reg.Execute(ctx, path, string(req.Payload)); err != nil {
		return d.fail(req, err)
	}
	return wire.NewResponse(req, codes.Changed)
}

func (d *Dispatcher) handleObserve(req *wire.Message, path model.Path, now time.Time) *wire.Message {
	values, err := d.reg.Read(path)
	if err != nil {
		return d.fail(req, err)
	}
	format := req.AcceptFormat(d.config.ContentFormat)
	payload, err := content.Encode(format, path, values)
	if err != nil {
		return d.failRead(req, err)
	}

	pmin, pmax, err := d.periods(req)
	if err != nil {
		return d.fail(req, err)
	}
	if err := d.observations.Observe(path, req.Token, pmin, pmax, values, now); err != nil {
		return d.fail(req, err)
	}

	resp := wire.NewResponse(req, codes.Content)
	resp.ContentFormat = format
	resp.Payload = payload
	seq := uint32(0)
	resp.Observe = &seq
	return resp
}

// periods resolves pmin and pmax: request attributes first, then the
// Server object defaults, then the configured defaults.
func (d *Dispatcher) periods(req *wire.Message) (pmin, pmax time.Duration, err error) {
	pmin, pmax = d.config.DefaultMinPeriod, d.config.DefaultMaxPeriod
	if smin, smax, ok := objects.ServerPeriods(d.reg); ok {
		pmin, pmax = smin, smax
	}

	if v, ok, err := req.QueryInt(wire.QueryMinPeriod); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", model.ErrBadRequest, err)
	} else if ok {
		pmin = time.Duration(v) * time.Second
	}
	if v, ok, err := req.QueryInt(wire.QueryMaxPeriod); err != nil {
		return 0, 0, fmt.Errorf("%w: %v", model.ErrBadRequest, err)
	} else if ok {
		pmax = time.Duration(v) * time.Second
	}
	return pmin, pmax, observe.ValidatePeriods(pmin, pmax)
}

func (d *Dispatcher) handleCancelObserve(req *wire.Message, path model.Path) *wire.Message {
	d.observations.Cancel(path)

	values, err := d.reg.Read(path)
	if err != nil {
		return d.fail(req, err)
	}
	return d.content(req, path, values, codes.Content)
}

func (d *Dispatcher) handleDiscover(req *wire.Message, path model.Path) *wire.Message {
	links, err := d.discover(path)
	if err != nil {
		return d.fail(req, err)
	}
	resp := wire.NewResponse(req, codes.Content)
	resp.ContentFormat = wire.FormatLinkFormat
	resp.Payload = content.FormatLinks(links)
	return resp
}

// discover lists path and everything below it down to resources. The
// root lists object instances only, like a registration payload.
func (d *Dispatcher) discover(path model.Path) ([]content.Link, error) {
	if path.IsRoot() {
		return content.InstanceLinks(d.reg)
	}
	if !d.reg.Exists(path) {
		return nil, fmt.Errorf("%w: %s", model.ErrNotFound, path)
	}

	links := []content.Link{d.link(path)}
	children, err := d.reg.Children(path)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		below, err := d.discover(child)
		if err != nil {
			return nil, err
		}
		links = append(links, below...)
	}
	return links, nil
}

func (d *Dispatcher) link(path model.Path) content.Link {
	l := content.Link{Target: path.String()}
	if reg, ok := d.observations.Get(path); ok {
		l.Attrs = append(l.Attrs,
			content.Attr{Key: wire.QueryMinPeriod, Value: strconv.FormatInt(int64(reg.MinPeriod/time.Second), 10)},
			content.Attr{Key: wire.QueryMaxPeriod, Value: strconv.FormatInt(int64(reg.MaxPeriod/time.Second), 10)},
		)
	}
	return l
}

func (d *Dispatcher) content(req *wire.Message, path model.Path, values []model.Value, code codes.Code) *wire.Message {
	format := req.AcceptFormat(d.config.ContentFormat)
	payload, err := content.Encode(format, path, values)
	if err != nil {
		return d.failRead(req, err)
	}
	resp := wire.NewResponse(req, code)
	resp.ContentFormat = format
	resp.Payload = payload
	return resp
}

// failRead reports a format the device cannot produce as 4.06.
func (d *Dispatcher) failRead(req *wire.Message, err error) *wire.Message {
	if errors.Is(err, content.ErrUnsupportedFormat) {
		return errorResponse(req, codes.NotAcceptable, err)
	}
	return d.fail(req, err)
}

func (d *Dispatcher) fail(req *wire.Message, err error) *wire.Message {
	code := Code(err)
	if d.config.Logger != nil {
		d.config.Logger.Debug("dispatch: request failed",
			"operation", req.Operation,
			"path", req.Path,
			"code", code,
			"error", err)
	}
	return errorResponse(req, code, err)
}

// Code maps an operation error to a response code.
func Code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.Content
	case errors.Is(err, model.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, model.ErrAccessDenied), errors.Is(err, errUnsupportedOperation):
		return codes.MethodNotAllowed
	case errors.Is(err, content.ErrUnsupportedFormat):
		return codes.UnsupportedMediaType
	case errors.Is(err, model.ErrBadRequest),
		errors.Is(err, content.ErrInvalidPayload),
		errors.Is(err, observe.ErrInvalidPeriod):
		return codes.BadRequest
	case errors.Is(err, observe.ErrTooManyObservations):
		return codes.ServiceUnavailable
	default:
		return codes.InternalServerError
	}
}

// errorResponse carries the error text as a diagnostic payload.
func errorResponse(req *wire.Message, code codes.Code, err error) *wire.Message {
	resp := wire.NewResponse(req, code)
	resp.ContentFormat = wire.FormatText
	resp.Payload = []byte(err.Error())
	return resp
}
