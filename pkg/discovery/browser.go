package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// BrowserConfig configures browser behavior.
type BrowserConfig struct {
	// BrowseTimeout bounds FindServer when ctx has no deadline.
	// Default: BrowseTimeout.
	BrowseTimeout time.Duration

	// Interface limits browsing to one network interface.
	// Empty string means all interfaces.
	Interface string

	Logger *slog.Logger
}

// DefaultBrowserConfig returns the default browser configuration.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		BrowseTimeout: BrowseTimeout,
	}
}

type browseFunc func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

func zeroconfBrowse(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
}

// MDNSBrowser finds servers using zeroconf.
type MDNSBrowser struct {
	config BrowserConfig
	browse browseFunc

	mu      sync.Mutex
	stopped bool
	cancels []context.CancelFunc
}

// NewMDNSBrowser creates a new mDNS browser.
func NewMDNSBrowser(config BrowserConfig) *MDNSBrowser {
	if config.BrowseTimeout <= 0 {
		config.BrowseTimeout = BrowseTimeout
	}
	return &MDNSBrowser{
		config: config,
		browse: zeroconfBrowse,
	}
}

// Browse streams the servers advertising serviceType until ctx is done.
// Services are aggregated by instance name; addresses seen on several
// interfaces are merged into one entry, and only new instances are sent.
func (b *MDNSBrowser) Browse(ctx context.Context, serviceType string) (<-chan *ServerService, error) {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil, fmt.Errorf("browser stopped")
	}
	ctx, cancel := context.WithCancel(ctx)
	b.cancels = append(b.cancels, cancel)
	b.mu.Unlock()

	out := make(chan *ServerService)
	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		defer close(out)
		services := make(map[string]*ServerService)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				svc, err := serviceFromEntry(entry)
				if err != nil {
					if b.config.Logger != nil {
						b.config.Logger.Debug("ignoring service", "instance", entry.Instance, "error", err)
					}
					continue
				}
				if existing, found := services[svc.InstanceName]; found {
					existing.Addresses = mergeAddresses(existing.Addresses, svc.Addresses)
					continue
				}
				services[svc.InstanceName] = svc
				select {
				case out <- svc:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					continue
				}
				if existing, found := services[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, ipStrings(entry.AddrIPv4, entry.AddrIPv6))
					if len(existing.Addresses) == 0 {
						delete(services, entry.Instance)
					}
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := b.browse(ctx, serviceType, Domain, entries, removed, b.options()...); err != nil && b.config.Logger != nil {
			b.config.Logger.Warn("mdns browse failed", "service", serviceType, "error", err)
		}
	}()

	return out, nil
}

// FindServer returns the first server advertising serviceType.
func (b *MDNSBrowser) FindServer(ctx context.Context, serviceType string) (*ServerService, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.BrowseTimeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	services, err := b.Browse(ctx, serviceType)
	if err != nil {
		return nil, err
	}
	select {
	case svc, ok := <-services:
		if ok {
			return svc, nil
		}
	case <-ctx.Done():
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, serviceType)
}

// Stop cancels all active browsing.
func (b *MDNSBrowser) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	for _, cancel := range b.cancels {
		cancel()
	}
	b.cancels = nil
}

func (b *MDNSBrowser) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func serviceFromEntry(entry *zeroconf.ServiceEntry) (*ServerService, error) {
	return newServerService(entry.Instance, entry.HostName, entry.Port, entry.Text,
		ipStrings(entry.AddrIPv4, entry.AddrIPv6))
}

// newServerService validates the TXT records of a browse result.
func newServerService(instance, host string, port int, text []string, addrs []string) (*ServerService, error) {
	info, err := DecodeServerTXT(StringsToTXTRecords(text))
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 0xFFFF {
		return nil, fmt.Errorf("invalid port %d", port)
	}
	return &ServerService{
		InstanceName: instance,
		Host:         host,
		Port:         uint16(port),
		Addresses:    addrs,
		Version:      info.Version,
		Binding:      info.Binding,
		TokenAuth:    info.TokenAuth,
	}, nil
}

func ipStrings(v4, v6 []net.IP) []string {
	addrs := make([]string, 0, len(v4)+len(v6))
	for _, ip := range v4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range v6 {
		addrs = append(addrs, ip.String())
	}
	return addrs
}

func mergeAddresses(existing, added []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range added {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

func removeAddresses(addresses, gone []string) []string {
	drop := make(map[string]bool, len(gone))
	for _, addr := range gone {
		drop[addr] = true
	}
	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !drop[addr] {
			result = append(result, addr)
		}
	}
	return result
}
