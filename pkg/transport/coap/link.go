package coap

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"

	"github.com/iotdm/iotdm-go/pkg/log"
	"github.com/iotdm/iotdm-go/pkg/transport"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

type link struct {
	cfg Config
	c   conn

	in  *transport.Queue
	out *transport.Queue

	mu      sync.Mutex
	waiters map[string]chan *wire.Message

	// aliases maps locally assigned tokens to the empty token the server
	// actually used.
	aliases map[string]message.Token

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func newLink(cfg Config) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		cfg:     cfg,
		in:      transport.NewQueue(cfg.QueueSize),
		out:     transport.NewQueue(cfg.QueueSize),
		waiters: make(map[string]chan *wire.Message),
		aliases: make(map[string]message.Token),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (l *link) start(c conn) {
	l.c = c
	go l.writeLoop()
	go l.watch()
}

func (l *link) watch() {
	select {
	case <-l.c.Done():
		l.fail(fmt.Errorf("%w: session ended by peer", transport.ErrClosed))
	case <-l.ctx.Done():
	}
}

func (l *link) fail(reason error) {
	l.in.Close(reason)
	l.out.Close(transport.ErrClosed)
	l.cancel()
}

// serve handles one server request. It blocks until the work loop answers.
func (l *link) serve(w mux.ResponseWriter, r *mux.Message) {
	req, err := requestFromCoAP(r.Message)
	if err != nil {
		_ = w.SetResponse(codes.MethodNotAllowed, message.TextPlain, nil)
		return
	}
	if len(req.Token) == 0 {
		local, err := wire.NewToken()
		if err != nil {
			_ = w.SetResponse(codes.InternalServerError, message.TextPlain, nil)
			return
		}
		req.Token = local
		l.mu.Lock()
		l.aliases[string(local)] = message.Token{}
		l.mu.Unlock()
	}

	frame, err := wire.Encode(req)
	if err != nil {
		_ = w.SetResponse(codes.BadRequest, message.TextPlain, nil)
		return
	}

	key := string(req.Token)
	reply := make(chan *wire.Message, 1)
	l.mu.Lock()
	l.waiters[key] = reply
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		delete(l.waiters, key)
		if req.Operation != wire.OpObserve {
			delete(l.aliases, key)
		}
		l.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(l.ctx, l.cfg.ReplyTimeout)
	defer cancel()

	if err := l.in.Put(ctx, frame); err != nil {
		_ = w.SetResponse(codes.ServiceUnavailable, message.TextPlain, nil)
		return
	}
	l.capture(frame, log.DirectionIn)

	select {
	case resp := <-reply:
		if err := w.SetResponse(resp.Code, resp.ContentFormat, bytes.NewReader(resp.Payload)); err != nil {
			return
		}
		if resp.Observe != nil {
			w.Message().SetObserve(*resp.Observe)
		}
	case <-ctx.Done():
		_ = w.SetResponse(codes.ServiceUnavailable, message.TextPlain, nil)
	}
}

func (l *link) writeLoop() {
	for {
		frame, err := l.out.Take(l.ctx)
		if err != nil {
			return
		}
		m, err := wire.Decode(frame)
		if err != nil {
			continue
		}
		l.capture(frame, log.DirectionOut)

		switch m.Kind {
		case wire.KindResponse:
			l.answer(m)
		case wire.KindNotify:
			if err := l.notify(m); err != nil {
				l.fail(fmt.Errorf("%w: %v", transport.ErrClosed, err))
				return
			}
		case wire.KindRequest:
			go l.exchange(m)
		}
	}
}

func (l *link) answer(resp *wire.Message) {
	l.mu.Lock()
	reply := l.waiters[string(resp.Token)]
	l.mu.Unlock()
	if reply == nil {
		return
	}
	select {
	case reply <- resp:
	default:
	}
}

func (l *link) notify(n *wire.Message) error {
	token := n.Token
	l.mu.Lock()
	if original, ok := l.aliases[string(token)]; ok {
		token = original
	}
	l.mu.Unlock()

	msg := l.c.AcquireMessage(l.ctx)
	defer l.c.ReleaseMessage(msg)
	out := *n
	out.Token = token
	notifyToCoAP(&out, msg)
	if err := l.c.WriteMessage(msg); err != nil {
		return err
	}

	if n.Confirmable {
		ack, err := wire.Encode(wire.NewAck(n.Token))
		if err != nil {
			return err
		}
		return l.in.Put(l.ctx, ack)
	}
	return nil
}

// exchange performs one client-initiated request. A failed exchange
// produces no response frame; the caller's retry policy decides.
func (l *link) exchange(m *wire.Message) {
	ctx, cancel := context.WithTimeout(l.ctx, l.cfg.RequestTimeout)
	defer cancel()

	req := l.c.AcquireMessage(ctx)
	defer l.c.ReleaseMessage(req)
	if err := requestToCoAP(m, req); err != nil {
		return
	}

	resp, err := l.c.Do(req)
	if err != nil {
		return
	}
	out := responseFromCoAP(m.Token, resp)
	l.c.ReleaseMessage(resp)

	frame, err := wire.Encode(out)
	if err != nil {
		return
	}
	_ = l.in.Offer(frame)
}

func (l *link) capture(frame []byte, dir log.Direction) {
	if l.cfg.Logger == nil {
		return
	}
	l.cfg.Logger.Log(transport.FrameEvent(l.cfg.ConnectionID, dir, frame, len(frame)))
}

func (l *link) Poll() ([]byte, bool, error) { return l.in.Poll() }

func (l *link) Send(frame []byte) error { return l.out.Offer(frame) }

func (l *link) RemoteAddr() string {
	if l.c == nil {
		return l.cfg.Addr
	}
	return l.c.RemoteAddr().String()
}

// Close sends any queued client requests (a final DEREGISTER) before
// tearing the session down.
func (l *link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		l.out.Close(transport.ErrClosed)
		for l.c != nil {
			frame, ok, _ := l.out.Poll()
			if !ok {
				break
			}
			if m, derr := wire.Decode(frame); derr == nil && m.Kind == wire.KindRequest {
				l.exchange(m)
			}
		}
		l.in.Close(transport.ErrClosed)
		l.cancel()
		if l.c != nil {
			err = l.c.Close()
		}
	})
	return err
}

var _ transport.Link = (*link)(nil)
