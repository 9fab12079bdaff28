package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/iotdm/iotdm-go/pkg/content"
	"github.com/iotdm/iotdm-go/pkg/log"
	"github.com/iotdm/iotdm-go/pkg/observe"
	"github.com/iotdm/iotdm-go/pkg/pending"
	"github.com/iotdm/iotdm-go/pkg/transport"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

// DoWork performs one bounded pass without blocking on the network:
//
//  1. adopt a finished dial and start registration
//  2. resend responses the link refused earlier
//  3. handle the frames buffered on the link
//  4. retransmit or expire device requests; check the connect timeout
//  5. run one observe tick and send a due registration update
//  6. fire the Connect completion if the attempt just finished
//
// It returns false once the Channel is closed or its state is corrupt;
// the caller should then Close and Open a new Channel.
func (c *Channel) DoWork() bool {
	if c.stopped() {
		return false
	}
	now := c.config.Clock.Now()

	c.collectDial(now)
	c.flushOutbox()
	c.receive(now)
	if c.stopped() {
		return false
	}
	c.expire(now)

	if c.machine.IsConnected() {
		if c.link == nil {
			return false
		}
		c.notify(now)
		if c.link != nil && c.updateDue(now) {
			c.update(now)
		}
	}

	c.fireCompletions()
	return !c.stopped()
}

// stopped reports whether Close ran or was requested from a callback.
func (c *Channel) stopped() bool {
	return c.closed || c.closeRequested.Load()
}

func (c *Channel) collectDial(now time.Time) {
	if c.dialCh == nil {
		return
	}
	var res dialResult
	select {
	case res = <-c.dialCh:
	default:
		return
	}
	c.dialCh = nil
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}

	if res.err != nil {
		c.fire(c.machine.Fail(fmt.Errorf("%w: %v", ErrTransportFailure, res.err)))
		return
	}
	c.link = res.link
	if c.config.Logger != nil {
		c.config.Logger.Debug("link established", "conn_id", c.connID, "remote", c.link.RemoteAddr())
	}
	c.startSession(now)
}

func (c *Channel) flushOutbox() {
	for c.link != nil && len(c.outbox) > 0 {
		if err := c.link.Send(c.outbox[0]); err != nil {
			return
		}
		c.outbox = c.outbox[1:]
	}
}

// receive handles at most one queue's worth of buffered frames.
func (c *Channel) receive(now time.Time) {
	for i := 0; i < c.config.QueueSize && c.link != nil && !c.stopped(); i++ {
		frame, ok, err := c.link.Poll()
		if err != nil {
			c.failSession(fmt.Errorf("%w: %v", ErrTransportFailure, err))
			return
		}
		if !ok {
			return
		}
		c.handleFrame(frame, now)
	}
}

func (c *Channel) handleFrame(frame []byte, now time.Time) {
	m, err := wire.Decode(frame)
	if err != nil {
		c.dropFrame(frame, err)
		return
	}
	c.captureMessage(m, log.DirectionIn)

	switch m.Kind {
	case wire.KindRequest:
		c.inCallback.Add(1)
		resp := c.dispatcher.Handle(context.Background(), m, now)
		c.inCallback.Add(-1)
		if c.stopped() {
			return
		}
		c.respond(resp)
	case wire.KindResponse:
		if !c.pending.Resolve(m) && c.config.Logger != nil {
			c.config.Logger.Debug("unmatched response", "token", m.Token, "code", m.Code)
		}
	case wire.KindAck:
		if !c.pending.Resolve(m) {
			c.observations.Acknowledge(m.Token)
		}
	case wire.KindReset:
		c.pending.Cancel(m.Token)
		c.observations.CancelToken(m.Token)
	default:
		if c.config.Logger != nil {
			c.config.Logger.Debug("dropping unexpected message", "kind", m.Kind, "token", m.Token)
		}
	}
}

// dropFrame logs an undecodable frame. It never ends the session.
func (c *Channel) dropFrame(frame []byte, err error) {
	if c.config.Logger != nil {
		c.config.Logger.Warn("dropping undecodable frame", "conn_id", c.connID, "size", len(frame), "error", err)
	}
	c.capture(log.Event{
		Direction: log.DirectionIn,
		Layer:     log.LayerWire,
		Category:  log.CategoryError,
		Error: &log.ErrorEventData{
			Layer:   log.LayerWire,
			Message: err.Error(),
		},
	})
}

// respond sends a response; a busy link queues it for the next pass.
func (c *Channel) respond(resp *wire.Message) {
	if c.link == nil {
		return
	}
	frame, err := wire.Encode(resp)
	if err != nil {
		if c.config.Logger != nil {
			c.config.Logger.Warn("cannot encode response", "error", err)
		}
		return
	}
	c.captureMessage(resp, log.DirectionOut)
	if len(c.outbox) == 0 {
		err = c.link.Send(frame)
		if err == nil {
			return
		}
		if !errors.Is(err, transport.ErrBusy) {
			// The next Poll reports the broken link.
			return
		}
	}
	c.outbox = append(c.outbox, frame)
}

func (c *Channel) expire(now time.Time) {
	if fire := c.machine.CheckTimeout(now); fire != nil {
		c.fire(fire)
		c.endSession()
		return
	}
	if c.link == nil {
		return
	}
	c.pending.Expire(now, func(m *wire.Message) bool {
		if c.link == nil {
			return false
		}
		return c.send(m) == nil
	})
}

// notify runs one observe tick. Notifications use the configured
// content format.
func (c *Channel) notify(now time.Time) {
	format := c.config.ContentFormat
	sender := observe.SenderFunc(func(n observe.Notification) error {
		if c.link == nil {
			return transport.ErrBusy
		}
		payload, err := content.Encode(format, n.Path, n.Values)
		if err != nil {
			return err
		}
		msg := wire.NewNotify(n.Token, n.Seq, format, payload)
		msg.Confirmable = n.Confirmable
		if err := c.send(msg); err != nil {
			return err
		}
		if n.Confirmable {
			c.trackNotification(msg, n.ID, now)
		}
		return nil
	})

	if err := c.observations.Tick(now, c.reg, sender); err != nil && c.config.Logger != nil {
		c.config.Logger.Warn("observe tick", "conn_id", c.connID, "error", err)
	}
}

// trackNotification waits for the acknowledgement of a confirmable
// notification of registration id. A pending entry under the same token
// belongs to a registration the server has since replaced and is dropped.
func (c *Channel) trackNotification(msg *wire.Message, id uint64, now time.Time) {
	settle := func(resp *wire.Message, err error) {
		if err != nil || (resp.Kind == wire.KindResponse && !resp.IsSuccess()) {
			c.observations.CancelNotification(id)
			return
		}
		c.observations.AcknowledgeNotification(id)
	}
	err := c.pending.Add(msg, now, settle)
	if errors.Is(err, pending.ErrDuplicateToken) {
		c.pending.Cancel(msg.Token)
		err = c.pending.Add(msg, now, settle)
	}
	if err != nil {
		// Untracked, the registration would stay in flight forever.
		c.observations.CancelNotification(id)
		if c.config.Logger != nil {
			c.config.Logger.Warn("notification not tracked", "conn_id", c.connID, "token", msg.Token, "error", err)
		}
	}
}

// send encodes m and offers it to the link.
func (c *Channel) send(m *wire.Message) error {
	if c.link == nil {
		return transport.ErrClosed
	}
	frame, err := wire.Encode(m)
	if err != nil {
		return err
	}
	if err := c.link.Send(frame); err != nil {
		return err
	}
	c.captureMessage(m, log.DirectionOut)
	return nil
}

func (c *Channel) captureMessage(m *wire.Message, dir log.Direction) {
	c.capture(log.Event{
		Direction: dir,
		Layer:     log.LayerWire,
		Category:  log.CategoryMessage,
		Message:   log.NewMessageEvent(m),
	})
}

func (c *Channel) fire(f func()) {
	if f != nil {
		c.completions = append(c.completions, f)
	}
}

func (c *Channel) fireCompletions() {
	fs := c.completions
	c.completions = nil
	for _, f := range fs {
		if c.stopped() {
			return
		}
		c.inCallback.Add(1)
		f()
		c.inCallback.Add(-1)
	}
}
