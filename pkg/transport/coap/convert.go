package coap

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"

	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

var errUnsupportedMethod = errors.New("unsupported method")

// optionStrings returns the values of every option with id, in order.
func optionStrings(opts message.Options, id message.OptionID) []string {
	var out []string
	for _, o := range opts {
		if o.ID == id {
			out = append(out, string(o.Value))
		}
	}
	return out
}

func joinPath(segments []string) string {
	return "/" + strings.Join(segments, "/")
}

// requestFromCoAP maps an incoming CoAP request to a wire request.
func requestFromCoAP(r *pool.Message) (*wire.Message, error) {
	opts := r.Options()
	m := &wire.Message{
		Kind:  wire.KindRequest,
		Token: append(message.Token(nil), r.Token()...),
		Path:  joinPath(optionStrings(opts, message.URIPath)),
		Query: optionStrings(opts, message.URIQuery),
	}
	if cf, err := r.ContentFormat(); err == nil {
		m.ContentFormat = cf
	}
	if accept, err := opts.GetUint32(message.Accept); err == nil {
		mt := message.MediaType(accept)
		m.Accept = &mt
	}

	switch r.Code() {
	case codes.GET:
		obs, err := r.Observe()
		switch {
		case err == nil && obs == wire.ObserveRegister:
			m.Operation = wire.OpObserve
		case err == nil && obs == wire.ObserveDeregister:
			m.Operation = wire.OpCancelObserve
		case m.Accept != nil && *m.Accept == wire.FormatLinkFormat:
			m.Operation = wire.OpDiscover
		default:
			m.Operation = wire.OpRead
		}
	case codes.PUT:
		m.Operation = wire.OpWrite
	case codes.POST:
		p, err := model.ParsePath(m.Path)
		if err == nil && p.IsResource() {
			m.Operation = wire.OpExecute
		} else {
			m.Operation = wire.OpWrite
		}
	default:
		return nil, fmt.Errorf("%w: %v", errUnsupportedMethod, r.Code())
	}

	if body, err := r.ReadBody(); err == nil {
		m.Payload = body
	}
	return m, nil
}

// methodFor returns the CoAP method of a client-initiated operation.
func methodFor(op wire.Operation) (codes.Code, error) {
	switch op {
	case wire.OpRegister, wire.OpUpdate, wire.OpAuth:
		return codes.POST, nil
	case wire.OpDeregister:
		return codes.DELETE, nil
	default:
		return 0, fmt.Errorf("%w: %s is not sent by the client", wire.ErrInvalidOp, op)
	}
}

// requestToCoAP fills req from a client-initiated wire request.
func requestToCoAP(m *wire.Message, req *pool.Message) error {
	code, err := methodFor(m.Operation)
	if err != nil {
		return err
	}
	req.SetCode(code)
	req.SetToken(m.Token)
	if err := req.SetPath(m.Path); err != nil {
		return fmt.Errorf("path %q: %w", m.Path, err)
	}
	for _, q := range m.Query {
		req.AddQuery(q)
	}
	if len(m.Payload) > 0 {
		req.SetContentFormat(m.ContentFormat)
		req.SetBody(bytes.NewReader(m.Payload))
	}
	return nil
}

// responseFromCoAP maps the response to a client-initiated request.
func responseFromCoAP(token message.Token, resp *pool.Message) *wire.Message {
	m := &wire.Message{
		Kind:     wire.KindResponse,
		Token:    token,
		Code:     resp.Code(),
		Location: locationPath(resp.Options()),
	}
	if cf, err := resp.ContentFormat(); err == nil {
		m.ContentFormat = cf
	}
	if body, err := resp.ReadBody(); err == nil {
		m.Payload = body
	}
	return m
}

func locationPath(opts message.Options) string {
	segments := optionStrings(opts, message.LocationPath)
	if len(segments) == 0 {
		return ""
	}
	return joinPath(segments)
}

// notifyToCoAP fills msg from a wire notification.
func notifyToCoAP(n *wire.Message, msg *pool.Message) {
	msg.SetCode(n.Code)
	msg.SetToken(n.Token)
	msg.SetObserve(n.ObserveSeq())
	msg.SetContentFormat(n.ContentFormat)
	msg.SetBody(bytes.NewReader(n.Payload))
}
