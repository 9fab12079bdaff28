package client

import (
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"

	"github.com/iotdm/iotdm-go/pkg/catalog"
	"github.com/iotdm/iotdm-go/pkg/connection"
	"github.com/iotdm/iotdm-go/pkg/content"
	"github.com/iotdm/iotdm-go/pkg/log"
	"github.com/iotdm/iotdm-go/pkg/objects"
	"github.com/iotdm/iotdm-go/pkg/observe"
	"github.com/iotdm/iotdm-go/pkg/pending"
	"github.com/iotdm/iotdm-go/pkg/transport"
	"github.com/iotdm/iotdm-go/pkg/version"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

// Channel errors.
var (
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrAlreadyInitialized = objects.ErrAlreadyInitialized
	ErrAlreadyConnecting  = connection.ErrAlreadyConnecting
	ErrInvalidState       = errors.New("invalid state")
	ErrTransportFailure   = errors.New("transport failure")
	ErrRegistration       = errors.New("registration rejected")
	ErrInvalidConfig      = errors.New("invalid configuration")
)

// Default ports per transport.
const (
	DefaultCoAPPort  = 5683
	DefaultCoAPSPort = 5684
)

// Defaults.
const (
	DefaultLifetime     = 300 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
	DefaultAuthPath     = "/auth/jwt"
	DefaultRegisterPath = "/rd"
	DefaultLwM2MVersion = version.Current
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SpawnFunc runs task on a background goroutine.
type SpawnFunc func(task func())

func goSpawn(task func()) { go task() }

// Config configures a Channel.
type Config struct {
	// Endpoint overrides the registration endpoint name from the
	// connection string.
	Endpoint string

	// Lifetime is the registration lifetime. An update is sent every
	// Lifetime/2. Zero uses the Server object value, then DefaultLifetime.
	Lifetime time.Duration

	// ConnectTimeout bounds a Connect from dial to registration.
	ConnectTimeout time.Duration

	// RequestTimeout bounds one exchange inside the CoAP transport.
	RequestTimeout time.Duration

	// MaxRetries and RetryBackoff shape retransmission of device
	// initiated requests.
	MaxRetries   int
	RetryBackoff connection.BackoffConfig

	// DefaultMinPeriod and DefaultMaxPeriod apply to observations whose
	// request carries no attributes and when the Server object is absent.
	DefaultMinPeriod time.Duration
	DefaultMaxPeriod time.Duration

	// MaxObservations bounds live observations.
	MaxObservations int

	// ConfirmableNotify keeps a notification in flight until the server
	// acknowledges it.
	ConfirmableNotify bool

	// ContentFormat encodes READ and NOTIFY payloads.
	ContentFormat message.MediaType

	// QueueSize bounds buffered frames per link direction.
	QueueSize int

	// TLSConfig secures the stream transport. Nil means plain TCP.
	TLSConfig *tls.Config

	// KeepAlive checks idle stream sessions for liveness.
	KeepAlive transport.KeepAlive

	// Catalog is the object schema. Nil uses the embedded default.
	Catalog *catalog.Catalog

	// Objects overrides catalog defaults in CreateDefaultObjects.
	Objects objects.Options

	// PollInterval paces the Start loop.
	PollInterval time.Duration

	// Transport replaces the transport selected by kind.
	Transport transport.Transport

	Clock Clock
	Spawn SpawnFunc

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger captures frames, messages and state changes.
	ProtocolLogger log.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	retry := pending.DefaultConfig()
	return Config{
		ConnectTimeout:   connection.DefaultConnectTimeout,
		MaxRetries:       retry.MaxRetries,
		RetryBackoff:     retry.Backoff,
		DefaultMinPeriod: observe.DefaultMinPeriod,
		DefaultMaxPeriod: observe.DefaultMaxPeriod,
		MaxObservations:  observe.DefaultMaxObservations,
		ContentFormat:    wire.FormatSenMLJSON,
		QueueSize:        transport.DefaultQueueSize,
		KeepAlive:        transport.DefaultKeepAlive(),
		PollInterval:     DefaultPollInterval,
		Clock:            systemClock{},
		Spawn:            goSpawn,
	}
}

// Validate checks the config.
func (c *Config) Validate() error {
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("%w: connect timeout must be positive", ErrInvalidConfig)
	}
	if c.Lifetime < 0 {
		return fmt.Errorf("%w: negative lifetime", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: negative retry count", ErrInvalidConfig)
	}
	if err := observe.ValidatePeriods(c.DefaultMinPeriod, c.DefaultMaxPeriod); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.MaxObservations <= 0 {
		return fmt.Errorf("%w: max observations must be positive", ErrInvalidConfig)
	}
	if !content.Supported(c.ContentFormat) || c.ContentFormat == wire.FormatText {
		return fmt.Errorf("%w: content format %v", ErrInvalidConfig, c.ContentFormat)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrInvalidConfig)
	}
	if c.Clock == nil || c.Spawn == nil {
		return fmt.Errorf("%w: clock and spawn are required", ErrInvalidConfig)
	}
	return nil
}

// Option adjusts the Config of a Channel being opened.
type Option func(*Config)

// WithConfig replaces the whole config.
func WithConfig(cfg Config) Option {
	return func(c *Config) { *c = cfg }
}

// WithTransport uses t instead of the transport selected by kind.
func WithTransport(t transport.Transport) Option {
	return func(c *Config) { c.Transport = t }
}

// WithClock sets the time source.
func WithClock(clock Clock) Option {
	return func(c *Config) { c.Clock = clock }
}

// WithSpawn sets how background tasks are started.
func WithSpawn(spawn SpawnFunc) Option {
	return func(c *Config) { c.Spawn = spawn }
}

// WithLogger sets the debug logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.Logger = logger }
}

// WithProtocolLogger sets the protocol capture logger.
func WithProtocolLogger(logger log.Logger) Option {
	return func(c *Config) { c.ProtocolLogger = logger }
}

// WithObjects sets the values applied by CreateDefaultObjects.
func WithObjects(opts objects.Options) Option {
	return func(c *Config) { c.Objects = opts }
}

// WithLifetime sets the registration lifetime.
func WithLifetime(d time.Duration) Option {
	return func(c *Config) { c.Lifetime = d }
}

// WithConfirmableNotify makes notifications confirmable.
func WithConfirmableNotify(confirmable bool) Option {
	return func(c *Config) { c.ConfirmableNotify = confirmable }
}
