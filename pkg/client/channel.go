package client

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/iotdm/iotdm-go/pkg/connection"
	"github.com/iotdm/iotdm-go/pkg/credentials"
	"github.com/iotdm/iotdm-go/pkg/dispatch"
	"github.com/iotdm/iotdm-go/pkg/log"
	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/objects"
	"github.com/iotdm/iotdm-go/pkg/observe"
	"github.com/iotdm/iotdm-go/pkg/pending"
	"github.com/iotdm/iotdm-go/pkg/transport"
	"github.com/iotdm/iotdm-go/pkg/transport/coap"
)

// Channel is one device management session: a resource registry, its
// connection to the server and the observations the server holds on it.
//
// A Channel is driven from one goroutine. Open, CreateDefaultObjects,
// Connect, DoWork and Close must not be called concurrently; while Start
// runs, the Start goroutine owns the Channel and only Close may be called.
type Channel struct {
	config Config
	creds  *credentials.Credentials
	kind   transport.Kind
	tr     transport.Transport
	connID string

	reg          *model.Registry
	machine      *connection.Machine
	observations *observe.Manager
	pending      *pending.Table
	dispatcher   *dispatch.Dispatcher

	link   transport.Link
	dialCh chan dialResult
	cancel context.CancelFunc

	// outbox holds responses the link refused; they go out first on the
	// next pass.
	outbox [][]byte

	// completions are fired at the end of the current DoWork.
	completions []func()

	session session

	initialized bool
	closed      bool

	startCancel context.CancelFunc
	startDone   chan struct{}

	// closeRequested is set by Close while Start runs; the Start
	// goroutine tears down once its current pass returns.
	closeRequested atomic.Bool
	// inCallback counts application callbacks running on the work loop.
	inCallback atomic.Int32
}

type dialResult struct {
	link transport.Link
	err  error
}

// Open parses connectionString and creates a Channel in state Closed.
// kind selects the transport unless WithTransport supplies one.
func Open(connectionString string, kind transport.Kind, opts ...Option) (*Channel, error) {
	creds, err := credentials.Parse(connectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Endpoint != "" {
		creds.Endpoint = cfg.Endpoint
	}

	c := &Channel{
		config: cfg,
		creds:  creds,
		kind:   kind,
		connID: uuid.New().String(),
		reg:    model.NewRegistry(),
	}

	tr, err := c.selectTransport()
	if err != nil {
		return nil, err
	}
	c.tr = tr

	c.machine = connection.NewMachine(cfg.ConnectTimeout)
	c.machine.OnStateChange(c.onStateChange)
	c.observations = observe.NewManagerWithConfig(observe.Config{
		MaxObservations: cfg.MaxObservations,
		Confirmable:     cfg.ConfirmableNotify,
	})
	c.reg.OnRemove(c.observations.RemovePath)
	c.pending = pending.NewTable(pending.Config{
		MaxRetries: cfg.MaxRetries,
		Backoff:    cfg.RetryBackoff,
	})
	c.dispatcher = dispatch.New(c.reg, c.observations, dispatch.Config{
		ContentFormat:    cfg.ContentFormat,
		DefaultMinPeriod: cfg.DefaultMinPeriod,
		DefaultMaxPeriod: cfg.DefaultMaxPeriod,
		Logger:           cfg.Logger,
	})
	return c, nil
}

func (c *Channel) selectTransport() (transport.Transport, error) {
	if c.config.Transport != nil {
		return c.config.Transport, nil
	}

	coapConfig := coap.Config{
		RequestTimeout: c.config.RequestTimeout,
		QueueSize:      c.config.QueueSize,
		Logger:         c.config.ProtocolLogger,
		ConnectionID:   c.connID,
	}
	switch c.kind {
	case transport.KindCoAPTCP:
		coapConfig.Addr = c.creds.Address(DefaultCoAPPort)
		return &coap.TCP{Config: coapConfig}, nil
	case transport.KindCoAPDTLS:
		if !c.creds.HasKey() {
			return nil, fmt.Errorf("%w: %s needs a shared access key", ErrInvalidArgument, c.kind)
		}
		coapConfig.Addr = c.creds.Address(DefaultCoAPSPort)
		return &coap.DTLS{Config: coapConfig, Identity: c.creds.DeviceID, Key: c.creds.Key}, nil
	case transport.KindStream:
		return &transport.Stream{
			Addr:         c.creds.Address(DefaultCoAPPort),
			TLSConfig:    c.config.TLSConfig,
			QueueSize:    c.config.QueueSize,
			KeepAlive:    c.config.KeepAlive,
			Logger:       c.config.ProtocolLogger,
			ConnectionID: c.connID,
		}, nil
	case transport.KindMemory:
		return nil, fmt.Errorf("%w: %s needs WithTransport", ErrInvalidArgument, c.kind)
	default:
		return nil, fmt.Errorf("%w: %v", transport.ErrUnknownKind, c.kind)
	}
}

// ConnectionID returns the UUID carried on protocol events.
func (c *Channel) ConnectionID() string { return c.connID }

// Endpoint returns the registration endpoint name.
func (c *Channel) Endpoint() string { return c.creds.Endpoint }

// Registry returns the resource registry. Local updates through it are
// trusted and bypass access modes.
func (c *Channel) Registry() *model.Registry { return c.reg }

// State returns the connection state.
func (c *Channel) State() connection.State { return c.machine.State() }

// Location returns the registration location, empty when unregistered.
func (c *Channel) Location() string { return c.session.location }

// Observations returns the number of live observations.
func (c *Channel) Observations() int { return c.observations.Count() }

// SetValue updates a resource on behalf of the application. Observers
// see the new value on their next evaluation.
func (c *Channel) SetValue(path model.Path, value any) error {
	if c.stopped() {
		return ErrInvalidState
	}
	return c.reg.Set(path, value)
}

// CreateDefaultObjects populates the registry from the catalog. A second
// call fails with ErrAlreadyInitialized and leaves the registry unchanged.
func (c *Channel) CreateDefaultObjects() error {
	if c.stopped() {
		return ErrInvalidState
	}
	if c.initialized {
		return ErrAlreadyInitialized
	}

	opts := c.config.Objects
	app := opts.Handlers.RegistrationUpdate
	opts.Handlers.RegistrationUpdate = func(ctx context.Context, p model.Path, args string) error {
		c.session.updateRequested = true
		if app != nil {
			return app(ctx, p, args)
		}
		return nil
	}
	if c.config.Lifetime > 0 && opts.Lifetime == 0 {
		opts.Lifetime = c.config.Lifetime
	}

	if err := objects.CreateDefaultObjects(c.reg, c.config.Catalog, opts); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Connect starts connecting in the background. onComplete is called
// exactly once from a later DoWork with nil on success, unless Close runs
// first. The returned error reports only synchronous misuse.
func (c *Channel) Connect(onComplete func(error)) error {
	if c.stopped() {
		return fmt.Errorf("%w: channel closed", ErrInvalidState)
	}
	now := c.config.Clock.Now()
	if err := c.machine.Begin(now, onComplete); err != nil {
		if errors.Is(err, connection.ErrAlreadyConnected) {
			return fmt.Errorf("%w: %v", ErrInvalidState, err)
		}
		return err
	}

	c.dropLink()
	ctx, cancel := context.WithTimeout(context.Background(), c.config.ConnectTimeout)
	results := make(chan dialResult, 1)
	c.cancel = cancel
	c.dialCh = results
	tr := c.tr
	c.config.Spawn(func() {
		link, err := tr.Dial(ctx)
		results <- dialResult{link: link, err: err}
	})
	return nil
}

// Close tears the Channel down. A pending Connect completion is never
// called. A registered session is deregistered on a best effort basis.
// Close is safe to call more than once.
//
// While Start runs, Close stops the loop and waits for it to finish.
// Called from a callback on the loop itself, it returns at once and the
// loop releases the Channel when the current DoWork returns.
func (c *Channel) Close() {
	if c.startCancel != nil {
		c.closeRequested.Store(true)
		c.startCancel()
		if c.inCallback.Load() > 0 {
			return
		}
		<-c.startDone
		c.startCancel = nil
	}
	c.shutdown()
}

func (c *Channel) shutdown() {
	if c.closed {
		return
	}
	c.closed = true
	c.machine.Close()
	c.completions = nil

	if c.link != nil && c.session.location != "" {
		c.deregister()
	}
	c.dropLink()

	c.pending.Clear()
	c.observations.ClearAll()
	c.session = session{}
}

// dropLink closes the current link and abandons an outstanding dial.
func (c *Channel) dropLink() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.dialCh != nil {
		results := c.dialCh
		c.dialCh = nil
		c.config.Spawn(func() {
			if res := <-results; res.err == nil && res.link != nil {
				_ = res.link.Close()
			}
		})
	}
	if c.link != nil {
		_ = c.link.Close()
		c.link = nil
	}
	c.outbox = nil
}

// Start connects and then runs DoWork every PollInterval on a background
// goroutine until ctx is cancelled or Close is called. Connect errors are
// returned synchronously; the connect outcome goes to onComplete.
func (c *Channel) Start(ctx context.Context, onComplete func(error)) error {
	if c.startCancel != nil {
		return fmt.Errorf("%w: already started", ErrInvalidState)
	}
	if err := c.Connect(onComplete); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.startCancel = cancel
	c.startDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.config.PollInterval)
		defer ticker.Stop()
		for c.DoWork() {
			select {
			case <-runCtx.Done():
				if c.closeRequested.Load() {
					c.shutdown()
				}
				return
			case <-ticker.C:
			}
		}
		if c.closeRequested.Load() {
			c.shutdown()
		}
	}()
	return nil
}

func (c *Channel) onStateChange(oldState, newState connection.State, reason error) {
	if c.config.Logger != nil {
		c.config.Logger.Info("connection state changed",
			"conn_id", c.connID,
			"from", oldState,
			"to", newState,
			"reason", reason)
	}
	ev := &log.StateChangeEvent{
		Entity:   log.StateEntityConnection,
		OldState: oldState.String(),
		NewState: newState.String(),
	}
	if reason != nil {
		ev.Reason = reason.Error()
	}
	c.capture(log.Event{
		Direction:   log.DirectionOut,
		Layer:       log.LayerSession,
		Category:    log.CategoryState,
		StateChange: ev,
	})
}

// capture stamps and forwards a protocol event.
func (c *Channel) capture(ev log.Event) {
	if c.config.ProtocolLogger == nil {
		return
	}
	ev.Timestamp = c.config.Clock.Now()
	ev.ConnectionID = c.connID
	ev.Endpoint = c.creds.Endpoint
	if c.link != nil {
		ev.RemoteAddr = c.link.RemoteAddr()
	}
	c.config.ProtocolLogger.Log(ev)
}
