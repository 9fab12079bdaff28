package coap

import (
	"context"
	"fmt"
	"net"
	"time"

	piondtls "github.com/pion/dtls/v2"
	"github.com/plgd-dev/go-coap/v3/dtls"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/mux"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/tcp"

	"github.com/iotdm/iotdm-go/pkg/log"
	"github.com/iotdm/iotdm-go/pkg/transport"
)

// Defaults.
const (
	// DefaultReplyTimeout bounds how long a server request waits for the
	// work loop to produce its response.
	DefaultReplyTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds one client-initiated exchange.
	DefaultRequestTimeout = 30 * time.Second
)

// conn is the part of the go-coap client connection the link uses.
// Both the TCP and the UDP/DTLS client connections provide it.
type conn interface {
	AcquireMessage(ctx context.Context) *pool.Message
	ReleaseMessage(m *pool.Message)
	Do(req *pool.Message) (*pool.Message, error)
	WriteMessage(req *pool.Message) error
	RemoteAddr() net.Addr
	Done() <-chan struct{}
	Close() error
}

// Config is shared by both variants.
type Config struct {
	// Addr is the server host:port.
	Addr string

	ReplyTimeout   time.Duration
	RequestTimeout time.Duration

	// QueueSize bounds buffered frames per direction.
	QueueSize int

	// Logger captures raw frames when set.
	Logger       log.Logger
	ConnectionID string
}

func (c Config) withDefaults() Config {
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = DefaultReplyTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	return c
}

// TCP is CoAP over TCP (RFC 8323).
type TCP struct {
	Config
}

// NewTCP creates a CoAP-over-TCP transport to addr.
func NewTCP(addr string) *TCP {
	return &TCP{Config: Config{Addr: addr}}
}

// Dial connects to the server.
func (t *TCP) Dial(ctx context.Context) (transport.Link, error) {
	return dial(ctx, t.Config, func(router *mux.Router) (conn, error) {
		return tcp.Dial(t.Addr, options.WithMux(router))
	})
}

// DTLS is CoAP over DTLS with a pre-shared key.
type DTLS struct {
	Config

	// Identity and Key are the PSK credentials.
	Identity string
	Key      []byte
}

// NewDTLS creates a CoAP-over-DTLS transport to addr.
func NewDTLS(addr, identity string, key []byte) *DTLS {
	return &DTLS{Config: Config{Addr: addr}, Identity: identity, Key: key}
}

// Dial performs the DTLS handshake and connects.
func (d *DTLS) Dial(ctx context.Context) (transport.Link, error) {
	key := append([]byte(nil), d.Key...)
	cfg := &piondtls.Config{
		PSK: func([]byte) ([]byte, error) {
			return key, nil
		},
		PSKIdentityHint: []byte(d.Identity),
		CipherSuites:    []piondtls.CipherSuiteID{piondtls.TLS_PSK_WITH_AES_128_CCM_8},
	}
	return dial(ctx, d.Config, func(router *mux.Router) (conn, error) {
		return dtls.Dial(d.Addr, cfg, options.WithMux(router))
	})
}

type dialResult struct {
	c   conn
	err error
}

// dial runs connect in the background so ctx can abandon a slow handshake.
func dial(ctx context.Context, cfg Config, connect func(*mux.Router) (conn, error)) (transport.Link, error) {
	cfg = cfg.withDefaults()
	l := newLink(cfg)

	router := mux.NewRouter()
	router.DefaultHandle(mux.HandlerFunc(l.serve))

	done := make(chan dialResult, 1)
	go func() {
		c, err := connect(router)
		done <- dialResult{c, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.Addr, res.err)
		}
		l.start(res.c)
		return l, nil
	case <-ctx.Done():
		go func() {
			if res := <-done; res.err == nil {
				_ = res.c.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

var (
	_ transport.Transport = (*TCP)(nil)
	_ transport.Transport = (*DTLS)(nil)
)
