// Command awared is the reference coordinator daemon.
//
// It connects to firmware (real or emulated with aware-fw) over the
// framed control channel, runs the discovery-session coordinator on top
// of it, and exposes an interactive console for registering clients and
// driving publish/subscribe sessions.
//
// Usage:
//
//	awared [flags]
//
// Flags:
//
//	-config string     Configuration file path (YAML)
//	-firmware string   Firmware address (host:port); empty discovers via mDNS
//	-iface string      Network interface for mDNS discovery (default all)
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-event-log string  Write protocol events to this file (CBOR)
//
// Examples:
//
//	# Connect to a local emulator found over mDNS
//	awared
//
//	# Connect to a fixed endpoint with a config file
//	awared -firmware 127.0.0.1:6342 -config /etc/aware/awared.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aware-protocol/aware-go/cmd/awared/interactive"
	"github.com/aware-protocol/aware-go/pkg/aware"
	"github.com/aware-protocol/aware-go/pkg/coordinator"
	"github.com/aware-protocol/aware-go/pkg/firmware"
	"github.com/aware-protocol/aware-go/pkg/log"
	"github.com/aware-protocol/aware-go/pkg/version"
)

// discoverTimeout bounds the mDNS search for a firmware emulator.
const discoverTimeout = 10 * time.Second

// Config holds the daemon configuration, merged from the YAML file and
// command-line flags (flags win).
type Config struct {
	ConfigFile string `yaml:"-"`

	Firmware struct {
		// Address is the firmware endpoint; empty means discover one
		// over mDNS.
		Address   string `yaml:"address"`
		Interface string `yaml:"interface"`
	} `yaml:"firmware"`

	// Radio is the configuration submitted for console connect commands.
	Radio struct {
		Support5GHz      bool   `yaml:"support5ghz"`
		MasterPreference uint8  `yaml:"masterPreference"`
		ClusterLow       uint16 `yaml:"clusterLow"`
		ClusterHigh      uint16 `yaml:"clusterHigh"`
		IdentityEvents   bool   `yaml:"identityEvents"`
	} `yaml:"radio"`

	Log struct {
		Level  string `yaml:"level"`
		Events string `yaml:"events"`
	} `yaml:"log"`
}

// DefaultConfigRequest implements interactive.Config.
func (c *Config) DefaultConfigRequest() aware.ConfigRequest {
	req := aware.DefaultConfigRequest()
	req.Support5GHz = c.Radio.Support5GHz
	req.MasterPreference = c.Radio.MasterPreference
	req.EnableIdentityChange = c.Radio.IdentityEvents
	if c.Radio.ClusterLow != 0 || c.Radio.ClusterHigh != 0 {
		req.ClusterLow = c.Radio.ClusterLow
		req.ClusterHigh = c.Radio.ClusterHigh
	}
	return req
}

var config Config

func init() {
	config.Log.Level = "info"
	config.Radio.ClusterHigh = aware.ClusterIDMax

	flag.StringVar(&config.ConfigFile, "config", "", "Configuration file path (YAML)")
	flag.StringVar(&config.Firmware.Address, "firmware", "", "Firmware address (host:port); empty discovers via mDNS")
	flag.StringVar(&config.Firmware.Interface, "iface", "", "Network interface for mDNS discovery (default all)")
	flag.StringVar(&config.Log.Level, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.Log.Events, "event-log", "", "Write protocol events to this file (CBOR)")
}

func main() {
	// The config file is read first so explicit flags override it.
	loadConfigFile()
	flag.Parse()

	logger := newLogger(config.Log.Level)
	logger.Info("awared starting",
		"version", version.Library, "protocol", version.Protocol)

	eventLogger, closeEvents, err := newEventLogger(config.Log.Events)
	if err != nil {
		logger.Error("failed to open event log", "path", config.Log.Events, "error", err)
		os.Exit(1)
	}
	defer closeEvents()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	address := config.Firmware.Address
	if address == "" {
		logger.Info("searching for firmware over mDNS",
			"service", firmware.ServiceType)
		locateCtx, locateCancel := context.WithTimeout(ctx, discoverTimeout)
		address, err = firmware.Locate(locateCtx, config.Firmware.Interface)
		locateCancel()
		if err != nil {
			logger.Error("no firmware endpoint found", "error", err)
			os.Exit(1)
		}
	}

	client := firmware.NewClient(firmware.ClientConfig{
		Logger:      logger,
		EventLogger: eventLogger,
	})
	coord := coordinator.New(client,
		coordinator.WithLogger(logger),
		coordinator.WithEventLogger(eventLogger),
		coordinator.WithUsageCallback(func(enabled bool) {
			logger.Info("usage state changed", "enabled", enabled)
		}))
	client.SetHandler(coord)

	if err := client.Connect(ctx, address); err != nil {
		logger.Error("failed to connect to firmware", "address", address, "error", err)
		os.Exit(1)
	}
	defer func() { _ = client.Close() }()
	logger.Info("connected to firmware", "address", address)

	if err := coord.Start(); err != nil {
		logger.Error("failed to start coordinator", "error", err)
		os.Exit(1)
	}
	defer coord.Stop()

	if err := coord.EnableUsage(); err != nil {
		logger.Error("failed to enable usage", "error", err)
		os.Exit(1)
	}

	console, err := interactive.New(coord, &config)
	if err != nil {
		logger.Error("failed to create console", "error", err)
		os.Exit(1)
	}
	// Route log output through readline to keep the prompt intact.
	logger = newLoggerTo(console.Stdout(), config.Log.Level)
	slog.SetDefault(logger)
	go console.Run(ctx, cancel)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
	}
}

// loadConfigFile pre-scans the arguments for -config and applies the
// file before the real flag.Parse, so flags keep precedence.
func loadConfigFile() {
	path := ""
	args := os.Args[1:]
	for i, arg := range args {
		switch {
		case arg == "-config" || arg == "--config":
			if i+1 < len(args) {
				path = args[i+1]
			}
		case strings.HasPrefix(arg, "-config=") || strings.HasPrefix(arg, "--config="):
			path = arg[strings.IndexByte(arg, '=')+1:]
		}
	}
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read config file: %v\n", err)
		os.Exit(1)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse config file: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	return newLoggerTo(os.Stderr, level)
}

func newLoggerTo(w io.Writer, level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l}))
}

// newEventLogger opens a CBOR file logger when a path is configured.
func newEventLogger(path string) (log.Logger, func(), error) {
	if path == "" {
		return log.NoopLogger{}, func() {}, nil
	}
	fl, err := log.NewFileLogger(path)
	if err != nil {
		return nil, nil, err
	}
	return fl, func() { _ = fl.Close() }, nil
}
