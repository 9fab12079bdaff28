// Command dm-client is a device management client.
//
// It registers with a device management server, answers its READ, WRITE,
// EXECUTE, OBSERVE and DISCOVER requests against the built-in objects and
// keeps the registration alive until interrupted.
//
// Usage:
//
//	dm-client [flags]
//
// Flags:
//
//	-conn string          Connection string (HostName=...;DeviceId=...[;SharedAccessKey=...])
//	-discover             Locate the server with mDNS instead of HostName
//	-transport string     Transport: tcp, dtls, stream (default "tcp")
//	-ca string            CA certificate file for the stream transport
//	-insecure             Skip TLS certificate verification
//	-config string        YAML configuration file
//	-state string         State file for writable values
//	-protocol-log string  Protocol capture file (view with dm-log)
//	-log-level string     Log level: debug, info, warn, error (default "info")
//	-interactive          Start the interactive shell
//	-simulate             Drain the battery level over time
//	-host-metrics         Report host memory and clock in the Device object
//
// Examples:
//
//	# Register over CoAP/TCP
//	dm-client -conn "HostName=localhost;DeviceId=dev-1"
//
//	# DTLS with a pre-shared key and a config file
//	dm-client -transport dtls -config /etc/iotdm/client.yaml
//
//	# Interactive shell with protocol capture
//	dm-client -conn "HostName=localhost;DeviceId=dev-1" -interactive -protocol-log dev-1.dmlog
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/iotdm/iotdm-go/pkg/client"
	"github.com/iotdm/iotdm-go/pkg/credentials"
	"github.com/iotdm/iotdm-go/pkg/discovery"
	"github.com/iotdm/iotdm-go/pkg/inspect"
	"github.com/iotdm/iotdm-go/pkg/log"
	"github.com/iotdm/iotdm-go/pkg/model"
	"github.com/iotdm/iotdm-go/pkg/objects"
	"github.com/iotdm/iotdm-go/pkg/persistence"
	"github.com/iotdm/iotdm-go/pkg/transport"
)

var (
	configFile = flag.String("config", "", "YAML configuration file")
	flagConfig = defaultConfig()
)

func init() {
	flag.StringVar(&flagConfig.ConnectionString, "conn", "", "Connection string (HostName=...;DeviceId=...[;SharedAccessKey=...])")
	flag.StringVar(&flagConfig.Transport, "transport", flagConfig.Transport, "Transport: tcp, dtls, stream")
	flag.StringVar(&flagConfig.Endpoint, "endpoint", "", "Endpoint name (default: DeviceId)")
	flag.BoolVar(&flagConfig.Discover, "discover", false, "Locate the server with mDNS")
	flag.StringVar(&flagConfig.DiscoverInterface, "discover-iface", "", "Network interface for mDNS (default: all)")
	flag.DurationVar(&flagConfig.Lifetime, "lifetime", 0, "Registration lifetime (default: Server object value)")
	flag.BoolVar(&flagConfig.ConfirmableNotify, "confirmable", false, "Send confirmable notifications")
	flag.StringVar(&flagConfig.ContentFormat, "format", flagConfig.ContentFormat, "Payload format: senml-json, senml-cbor")
	flag.StringVar(&flagConfig.TLS.CAFile, "ca", "", "CA certificate file for the stream transport (default: system roots)")
	flag.BoolVar(&flagConfig.TLS.Insecure, "insecure", false, "Skip TLS certificate verification (stream transport)")
	flag.StringVar(&flagConfig.Device.SerialNumber, "serial", "", "Device serial number")
	flag.StringVar(&flagConfig.Catalog, "catalog", "", "Object catalog YAML (default: built-in)")
	flag.StringVar(&flagConfig.StateFile, "state", "", "State file for writable values")
	flag.StringVar(&flagConfig.ProtocolLog, "protocol-log", "", "Protocol capture file")
	flag.StringVar(&flagConfig.LogLevel, "log-level", flagConfig.LogLevel, "Log level: debug, info, warn, error")
	flag.BoolVar(&flagConfig.Interactive, "interactive", false, "Start the interactive shell")
	flag.BoolVar(&flagConfig.Simulate, "simulate", false, "Drain the battery level over time")
	flag.BoolVar(&flagConfig.HostMetrics, "host-metrics", false, "Report host memory and clock in the Device object")
}

func main() {
	flag.Parse()

	cfg, err := resolveConfig(*configFile, flag.CommandLine, flagConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(2)
	}
	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfig layers the config file under the flags set explicitly on
// the command line.
func resolveConfig(path string, fs *flag.FlagSet, flags Config) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := loadConfigFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "conn":
			cfg.ConnectionString = flags.ConnectionString
		case "transport":
			cfg.Transport = flags.Transport
		case "endpoint":
			cfg.Endpoint = flags.Endpoint
		case "discover":
			cfg.Discover = flags.Discover
		case "discover-iface":
			cfg.DiscoverInterface = flags.DiscoverInterface
		case "lifetime":
			cfg.Lifetime = flags.Lifetime
		case "confirmable":
			cfg.ConfirmableNotify = flags.ConfirmableNotify
		case "format":
			cfg.ContentFormat = flags.ContentFormat
		case "insecure":
			cfg.TLS.Insecure = flags.TLS.Insecure
		case "ca":
			cfg.TLS.CAFile = flags.TLS.CAFile
		case "serial":
			cfg.Device.SerialNumber = flags.Device.SerialNumber
		case "catalog":
			cfg.Catalog = flags.Catalog
		case "state":
			cfg.StateFile = flags.StateFile
		case "protocol-log":
			cfg.ProtocolLog = flags.ProtocolLog
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		case "interactive":
			cfg.Interactive = flags.Interactive
		case "simulate":
			cfg.Simulate = flags.Simulate
		case "host-metrics":
			cfg.HostMetrics = flags.HostMetrics
		}
	})
	return cfg, cfg.validate()
}

func run(cfg Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		rl     *readline.Instance
		logOut io.Writer = os.Stderr
	)
	if cfg.Interactive {
		var err error
		rl, err = readline.NewEx(&readline.Config{
			Prompt:          "client> ",
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return fmt.Errorf("failed to create readline: %w", err)
		}
		logOut = rl.Stderr()
	}

	level, _ := parseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(logOut, &slog.HandlerOptions{Level: level}))

	clientCfg, err := cfg.clientConfig(logger)
	if err != nil {
		return err
	}
	if cfg.ProtocolLog != "" {
		fileLogger, err := log.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			return fmt.Errorf("protocol log: %w", err)
		}
		defer fileLogger.Close()
		clientCfg.ProtocolLogger = log.NewMultiLogger(fileLogger, log.NewSlogAdapter(logger))
		logger.Info("capturing protocol events", "file", cfg.ProtocolLog)
	}

	var store *persistence.StateStore
	if cfg.StateFile != "" {
		store = persistence.NewStateStore(cfg.StateFile)
	}
	clientCfg.Objects.Handlers = objects.Handlers{
		Reboot: func(context.Context, model.Path, string) error {
			logger.Info("reboot requested by server")
			return nil
		},
		FactoryReset: func(context.Context, model.Path, string) error {
			logger.Info("factory reset requested by server")
			if store != nil {
				return store.Clear()
			}
			return nil
		},
		FirmwareUpdate: func(_ context.Context, _ model.Path, args string) error {
			logger.Info("firmware update requested by server", "args", args)
			return nil
		},
	}

	kind, err := transport.ParseKind(cfg.Transport)
	if err != nil {
		return err
	}
	connStr := cfg.ConnectionString
	if cfg.Discover {
		if connStr, err = discoverServer(ctx, connStr, kind, cfg.DiscoverInterface, logger); err != nil {
			return err
		}
	}
	ch, err := client.Open(connStr, kind, client.WithConfig(clientCfg))
	if err != nil {
		return err
	}
	if err := ch.CreateDefaultObjects(); err != nil {
		ch.Close()
		return err
	}
	if store != nil {
		restoreState(ch, store, logger)
	}

	logger.Info("device management client",
		"endpoint", ch.Endpoint(),
		"transport", kind,
		"conn_id", ch.ConnectionID())

	r := newRunner(ch, logger)
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx)
	}()

	do := func(fn func(*client.Channel)) bool { return r.Do(ctx, fn) }
	if cfg.Simulate {
		go runSimulation(ctx, do, logger)
	}
	if cfg.HostMetrics {
		go newHostSampler(logger).run(ctx, do)
	}

	var save func(*client.Channel) error
	if store != nil {
		save = func(ch *client.Channel) error { return saveState(ch, store) }
	}
	quitCtx, quit := context.WithCancel(ctx)
	defer quit()
	if cfg.Interactive {
		go runShell(quitCtx, quit, rl, &shell{out: rl.Stdout(), format: inspect.NewFormatter(), do: do, save: save})
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		logger.Info("received signal", "signal", sig)
	case <-quitCtx.Done():
	case <-done:
	}

	if save != nil {
		r.Do(ctx, func(ch *client.Channel) {
			if err := save(ch); err != nil {
				logger.Warn("saving state", "error", err)
			}
		})
	}
	logger.Info("shutting down")
	cancel()
	<-done
	return nil
}

// discoverServer browses for a server matching kind and points the
// connection string at it.
func discoverServer(ctx context.Context, connStr string, kind transport.Kind, iface string, logger *slog.Logger) (string, error) {
	serviceType, err := discovery.ServiceTypeFor(kind)
	if err != nil {
		return "", err
	}
	browser := discovery.NewMDNSBrowser(discovery.BrowserConfig{
		Interface: iface,
		Logger:    logger,
	})
	defer browser.Stop()

	logger.Info("browsing for server", "service", serviceType)
	svc, err := browser.FindServer(ctx, serviceType)
	if err != nil {
		return "", err
	}
	logger.Info("found server",
		"instance", svc.InstanceName,
		"addr", svc.Addr(),
		"version", svc.Version,
		"token_auth", svc.TokenAuth)
	return credentials.WithHostName(connStr, svc.Addr()), nil
}

func restoreState(ch *client.Channel, store *persistence.StateStore, logger *slog.Logger) {
	state, err := store.Load()
	if err != nil {
		logger.Warn("ignoring state file", "file", store.Path(), "error", err)
		return
	}
	if state == nil {
		return
	}
	if state.Endpoint != "" && state.Endpoint != ch.Endpoint() {
		logger.Warn("state file belongs to another endpoint", "file", store.Path(), "endpoint", state.Endpoint)
		return
	}
	if err := persistence.Restore(ch.Registry(), state.Values); err != nil {
		logger.Warn("some values were not restored", "error", err)
	}
	logger.Info("restored state", "values", len(state.Values), "saved_at", state.SavedAt.Format(time.RFC3339))
}

func saveState(ch *client.Channel, store *persistence.StateStore) error {
	values, err := persistence.Snapshot(ch.Registry())
	if err != nil {
		return err
	}
	return store.Save(&persistence.ClientState{
		Endpoint: ch.Endpoint(),
		Location: ch.Location(),
		Values:   values,
	})
}
