package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/iotdm/iotdm-go/pkg/transport"
)

// Service type constants for mDNS.
const (
	ServiceTypeTCP  = "_lwm2m._tcp"
	ServiceTypeDTLS = "_lwm2ms._udp"

	// Domain is the mDNS domain.
	Domain = "local"
)

// TXT record keys.
const (
	TXTKeyVersion = "v"
	TXTKeyBinding = "b"
	TXTKeyAuth    = "auth"
)

// BrowseTimeout bounds FindServer when the context has no deadline.
const BrowseTimeout = 10 * time.Second

// Discovery errors.
var (
	ErrNotFound          = errors.New("no server found")
	ErrMissingTXT        = errors.New("missing required TXT record")
	ErrUnsupportedKind   = errors.New("transport cannot be discovered")
	ErrUnsupportedServer = errors.New("unsupported server version")
)

// ServiceTypeFor returns the service type advertised for a transport.
func ServiceTypeFor(kind transport.Kind) (string, error) {
	switch kind {
	case transport.KindCoAPTCP, transport.KindStream:
		return ServiceTypeTCP, nil
	case transport.KindCoAPDTLS:
		return ServiceTypeDTLS, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedKind, kind)
	}
}

// ServerService is a discovered device management server.
type ServerService struct {
	InstanceName string
	Host         string
	Port         uint16

	// Addresses holds the IPv4 addresses first, then IPv6.
	Addresses []string

	Version   string
	Binding   string
	TokenAuth bool
}

// Addr returns host:port, preferring the first resolved address over the
// advertised host name.
func (s *ServerService) Addr() string {
	host := strings.TrimSuffix(s.Host, ".")
	if len(s.Addresses) > 0 {
		host = s.Addresses[0]
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port)))
}

// ServerInfo is the content of a server's TXT records.
type ServerInfo struct {
	Version   string
	Binding   string
	TokenAuth bool
}
