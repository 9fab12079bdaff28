package client

import (
	"fmt"
	"strconv"
	"time"

	"github.com/iotdm/iotdm-go/pkg/connection"
	"github.com/iotdm/iotdm-go/pkg/content"
	"github.com/iotdm/iotdm-go/pkg/credentials"
	"github.com/iotdm/iotdm-go/pkg/log"
	"github.com/iotdm/iotdm-go/pkg/objects"
	"github.com/iotdm/iotdm-go/pkg/pending"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

// session is the registration state of the current link.
type session struct {
	location   string
	lifetime   time.Duration
	nextUpdate time.Time

	registering     bool
	updating        bool
	updateRequested bool
}

// startSession runs once the link is up: authenticate when the
// credentials carry a key, then register.
func (c *Channel) startSession(now time.Time) {
	if c.creds.HasKey() {
		c.authenticate(now)
		return
	}
	c.register(now)
}

func (c *Channel) authenticate(now time.Time) {
	token, err := c.creds.Token(now, credentials.DefaultTokenTTL)
	if err != nil {
		c.failSession(fmt.Errorf("%w: %v", ErrRegistration, err))
		return
	}
	req, err := wire.NewRequest(wire.OpAuth, DefaultAuthPath)
	if err != nil {
		c.failSession(err)
		return
	}
	req.ContentFormat = wire.FormatText
	req.Payload = []byte(token)

	c.request(req, now, func(resp *wire.Message, err error) {
		switch {
		case err != nil:
			c.failSession(fmt.Errorf("%w: auth: %v", ErrTransportFailure, err))
		case !resp.IsSuccess():
			c.failSession(fmt.Errorf("%w: auth answered %v", ErrRegistration, resp.Code))
		default:
			c.register(c.config.Clock.Now())
		}
	})
}

// lifetime resolves the registration lifetime: config, then the Server
// object, then DefaultLifetime.
func (c *Channel) lifetime() time.Duration {
	if c.config.Lifetime > 0 {
		return c.config.Lifetime
	}
	if lt, ok := objects.ServerLifetimeValue(c.reg); ok {
		return lt
	}
	return DefaultLifetime
}

func (c *Channel) register(now time.Time) {
	links, err := content.InstanceLinks(c.reg)
	if err != nil {
		c.failSession(err)
		return
	}
	req, err := wire.NewRequest(wire.OpRegister, DefaultRegisterPath)
	if err != nil {
		c.failSession(err)
		return
	}
	lifetime := c.lifetime()
	req.Query = []string{
		"ep=" + c.creds.Endpoint,
		"lt=" + strconv.FormatInt(int64(lifetime/time.Second), 10),
		"lwm2m=" + DefaultLwM2MVersion,
		"b=T",
	}
	req.ContentFormat = wire.FormatLinkFormat
	req.Payload = content.FormatLinks(links)

	c.session.registering = true
	c.request(req, now, func(resp *wire.Message, err error) {
		c.session.registering = false
		switch {
		case err != nil:
			c.failSession(fmt.Errorf("%w: register: %v", ErrTransportFailure, err))
		case !resp.IsSuccess():
			c.failSession(fmt.Errorf("%w: register answered %v", ErrRegistration, resp.Code))
		case resp.Location == "":
			c.failSession(fmt.Errorf("%w: register response has no location", ErrRegistration))
		default:
			done := c.config.Clock.Now()
			c.session.location = resp.Location
			c.session.lifetime = lifetime
			c.session.nextUpdate = done.Add(lifetime / 2)
			c.session.updateRequested = false
			c.registrationEvent("", "REGISTERED", resp.Location)
			c.fire(c.machine.Establish())
		}
	})
}

func (c *Channel) update(now time.Time) {
	req, err := wire.NewRequest(wire.OpUpdate, c.session.location)
	if err != nil {
		c.failSession(err)
		return
	}
	if lifetime := c.lifetime(); lifetime != c.session.lifetime {
		req.Query = []string{"lt=" + strconv.FormatInt(int64(lifetime/time.Second), 10)}
		c.session.lifetime = lifetime
	}

	c.session.updating = true
	c.session.updateRequested = false
	c.request(req, now, func(resp *wire.Message, err error) {
		c.session.updating = false
		switch {
		case err != nil:
			c.failSession(fmt.Errorf("%w: update: %v", connection.ErrSessionLost, err))
		case !resp.IsSuccess():
			// The server no longer knows this registration.
			c.registrationEvent("REGISTERED", "UNREGISTERED", resp.Code.String())
			c.session.location = ""
			c.register(c.config.Clock.Now())
		default:
			c.session.nextUpdate = c.config.Clock.Now().Add(c.session.lifetime / 2)
			c.registrationEvent("REGISTERED", "UPDATED", "")
		}
	})
}

// updateDue reports whether a registration update should go out at now.
func (c *Channel) updateDue(now time.Time) bool {
	s := &c.session
	if s.location == "" || s.updating || s.registering {
		return false
	}
	return s.updateRequested || !now.Before(s.nextUpdate)
}

// deregister sends a DEREGISTER without waiting for the answer. Links
// flush queued frames on Close.
func (c *Channel) deregister() {
	req, err := wire.NewRequest(wire.OpDeregister, c.session.location)
	if err != nil {
		return
	}
	if err := c.send(req); err != nil && c.config.Logger != nil {
		c.config.Logger.Debug("deregister not sent", "error", err)
	}
	c.registrationEvent("REGISTERED", "DEREGISTERED", "")
}

// request sends a device-initiated request and tracks it until answered.
func (c *Channel) request(req *wire.Message, now time.Time, cb pending.Callback) {
	if err := c.pending.Add(req, now, cb); err != nil {
		c.failSession(err)
		return
	}
	if err := c.send(req); err != nil && c.config.Logger != nil {
		// Retransmission picks it up.
		c.config.Logger.Debug("request not sent", "operation", req.Operation, "error", err)
	}
}

// failSession ends the current attempt or session with reason.
func (c *Channel) failSession(reason error) {
	c.fire(c.machine.Fail(reason))
	c.endSession()
}

// endSession drops the link and everything tied to it.
func (c *Channel) endSession() {
	c.dropLink()
	c.pending.Clear()
	c.observations.ClearAll()
	c.session = session{}
}

func (c *Channel) registrationEvent(oldState, newState, reason string) {
	if c.config.Logger != nil {
		c.config.Logger.Info("registration state changed",
			"conn_id", c.connID,
			"state", newState,
			"location", c.session.location)
	}
	c.capture(log.Event{
		Direction: log.DirectionOut,
		Layer:     log.LayerSession,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntityRegistration,
			OldState: oldState,
			NewState: newState,
			Reason:   reason,
		},
	})
}
