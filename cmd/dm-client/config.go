package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"gopkg.in/yaml.v3"

	"github.com/iotdm/iotdm-go/pkg/catalog"
	"github.com/iotdm/iotdm-go/pkg/cert"
	"github.com/iotdm/iotdm-go/pkg/client"
	"github.com/iotdm/iotdm-go/pkg/objects"
	"github.com/iotdm/iotdm-go/pkg/transport"
	"github.com/iotdm/iotdm-go/pkg/wire"
)

// Config holds the command configuration. The YAML file fills it first;
// flags given on the command line override the file.
type Config struct {
	ConnectionString string `yaml:"connection_string"`
	Transport        string `yaml:"transport"`
	Endpoint         string `yaml:"endpoint"`

	// Discover locates the server with mDNS and replaces the HostName of
	// the connection string.
	Discover          bool   `yaml:"discover"`
	DiscoverInterface string `yaml:"discover_interface"`

	Lifetime          time.Duration `yaml:"lifetime"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout"`
	ConfirmableNotify bool          `yaml:"confirmable_notify"`
	ContentFormat     string        `yaml:"content_format"`

	TLS     TLSConfig     `yaml:"tls"`
	Observe ObserveConfig `yaml:"observe"`
	Device  DeviceConfig  `yaml:"device"`

	Catalog     string `yaml:"catalog"`
	StateFile   string `yaml:"state_file"`
	ProtocolLog string `yaml:"protocol_log"`
	LogLevel    string `yaml:"log_level"`

	Interactive bool `yaml:"interactive"`
	Simulate    bool `yaml:"simulate"`
	HostMetrics bool `yaml:"host_metrics"`
}

// TLSConfig holds the PEM files of the stream transport.
type TLSConfig struct {
	CAFile     string `yaml:"ca_file"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	ServerName string `yaml:"server_name"`
	Insecure   bool   `yaml:"insecure"`
}

// ObserveConfig holds observation defaults.
type ObserveConfig struct {
	DefaultMinPeriod time.Duration `yaml:"default_min_period"`
	DefaultMaxPeriod time.Duration `yaml:"default_max_period"`
	MaxObservations  int           `yaml:"max_observations"`
}

// DeviceConfig overrides Device object values.
type DeviceConfig struct {
	Manufacturer    string `yaml:"manufacturer"`
	Model           string `yaml:"model"`
	SerialNumber    string `yaml:"serial_number"`
	FirmwareVersion string `yaml:"firmware_version"`
}

func defaultConfig() Config {
	return Config{
		Transport:     transport.KindCoAPTCP.String(),
		ContentFormat: "senml-json",
		LogLevel:      "info",
	}
}

// loadConfigFile reads a YAML config file into cfg.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Config) validate() error {
	if c.ConnectionString == "" {
		return fmt.Errorf("connection string is required")
	}
	if _, err := transport.ParseKind(c.Transport); err != nil {
		return err
	}
	if _, err := parseContentFormat(c.ContentFormat); err != nil {
		return err
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

func parseContentFormat(s string) (message.MediaType, error) {
	switch strings.ToLower(s) {
	case "", "senml-json", "json":
		return wire.FormatSenMLJSON, nil
	case "senml-cbor", "cbor":
		return wire.FormatSenMLCBOR, nil
	default:
		return 0, fmt.Errorf("unknown content format %q (must be senml-json or senml-cbor)", s)
	}
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// clientConfig builds the Channel configuration.
func (c *Config) clientConfig(logger *slog.Logger) (client.Config, error) {
	cfg := client.DefaultConfig()
	cfg.Endpoint = c.Endpoint
	cfg.Lifetime = c.Lifetime
	if c.ConnectTimeout > 0 {
		cfg.ConnectTimeout = c.ConnectTimeout
	}
	cfg.ConfirmableNotify = c.ConfirmableNotify
	if c.Observe.DefaultMinPeriod > 0 {
		cfg.DefaultMinPeriod = c.Observe.DefaultMinPeriod
	}
	if c.Observe.DefaultMaxPeriod > 0 {
		cfg.DefaultMaxPeriod = c.Observe.DefaultMaxPeriod
	}
	if c.Observe.MaxObservations > 0 {
		cfg.MaxObservations = c.Observe.MaxObservations
	}

	format, err := parseContentFormat(c.ContentFormat)
	if err != nil {
		return cfg, err
	}
	cfg.ContentFormat = format

	if c.Catalog != "" {
		cat, err := catalog.LoadFile(c.Catalog)
		if err != nil {
			return cfg, err
		}
		cfg.Catalog = cat
	}

	kind, err := transport.ParseKind(c.Transport)
	if err != nil {
		return cfg, err
	}
	if kind == transport.KindStream {
		tlsConfig, err := cert.ClientTLSConfig(cert.Files{
			CAFile:     c.TLS.CAFile,
			CertFile:   c.TLS.CertFile,
			KeyFile:    c.TLS.KeyFile,
			ServerName: c.TLS.ServerName,
			Insecure:   c.TLS.Insecure,
		})
		if err != nil {
			return cfg, err
		}
		cfg.TLSConfig = tlsConfig
	}

	cfg.Objects = objects.Options{
		Manufacturer:    c.Device.Manufacturer,
		ModelNumber:     c.Device.Model,
		SerialNumber:    c.Device.SerialNumber,
		FirmwareVersion: c.Device.FirmwareVersion,
	}
	cfg.Logger = logger
	return cfg, cfg.Validate()
}
