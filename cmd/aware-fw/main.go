// Command aware-fw runs the firmware emulator daemon.
//
// The emulator stands in for NAN radio firmware: it accepts control
// channels over TCP, matches publish and subscribe sessions by service
// name across connections, and relays follow-on messages between
// matched peers. It optionally announces itself over mDNS so awared
// instances can locate it without configuration.
//
// Usage:
//
//	aware-fw [flags]
//
// Flags:
//
//	-listen string     Listen address (default "127.0.0.1:6342")
//	-instance string   mDNS instance name (default "aware-fw")
//	-mdns              Announce the emulator over mDNS (default true)
//	-iface string      Network interface for mDNS (default all)
//	-drop int          Swallow every Nth command for timeout testing
//	-log-level string  Log level: debug, info, warn, error (default "info")
//	-event-log string  Write protocol events to this file (CBOR)
//
// Examples:
//
//	# Start the emulator on the default port
//	aware-fw
//
//	# Exercise host command timeouts by dropping every 5th command
//	aware-fw -drop 5 -log-level debug
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/aware-protocol/aware-go/pkg/firmware"
	"github.com/aware-protocol/aware-go/pkg/log"
	"github.com/aware-protocol/aware-go/pkg/version"
)

// Config holds the emulator configuration.
type Config struct {
	Listen    string
	Instance  string
	MDNS      bool
	Interface string
	DropEvery int
	LogLevel  string
	EventLog  string
}

var config Config

func init() {
	flag.StringVar(&config.Listen, "listen", "127.0.0.1:6342", "Listen address")
	flag.StringVar(&config.Instance, "instance", "aware-fw", "mDNS instance name")
	flag.BoolVar(&config.MDNS, "mdns", true, "Announce the emulator over mDNS")
	flag.StringVar(&config.Interface, "iface", "", "Network interface for mDNS (default all)")
	flag.IntVar(&config.DropEvery, "drop", 0, "Swallow every Nth command for timeout testing")
	flag.StringVar(&config.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	flag.StringVar(&config.EventLog, "event-log", "", "Write protocol events to this file (CBOR)")
}

func main() {
	flag.Parse()

	logger := newLogger(config.LogLevel)
	logger.Info("aware-fw starting",
		"version", version.Library, "protocol", version.Protocol)

	eventLogger, closeEvents, err := newEventLogger(config.EventLog)
	if err != nil {
		logger.Error("failed to open event log", "path", config.EventLog, "error", err)
		os.Exit(1)
	}
	defer closeEvents()

	emu := firmware.NewEmulator(firmware.EmulatorConfig{
		Logger:      logger,
		EventLogger: eventLogger,
		DropEvery:   config.DropEvery,
	})
	if err := emu.Start(config.Listen); err != nil {
		logger.Error("failed to start emulator", "error", err)
		os.Exit(1)
	}
	defer func() { _ = emu.Close() }()

	if config.DropEvery > 0 {
		logger.Warn("command dropping enabled", "every", config.DropEvery)
	}

	if config.MDNS {
		port, err := listenPort(emu.Addr())
		if err != nil {
			logger.Error("failed to determine listen port", "error", err)
			os.Exit(1)
		}
		server, err := firmware.Advertise(config.Instance, port, config.Interface)
		if err != nil {
			logger.Error("failed to announce emulator", "error", err)
			os.Exit(1)
		}
		defer server.Shutdown()
		logger.Info("announced over mDNS",
			"instance", config.Instance, "service", firmware.ServiceType)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	logger.Info("shutting down", "signal", sig.String())
}

func newLogger(level string) *slog.Logger {
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
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
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

func listenPort(addr net.Addr) (int, error) {
	_, portStr, err := net.SplitHostPort(addr.String())
	if err != nil {
		return 0, fmt.Errorf("bad listen address %q: %w", addr.String(), err)
	}
	return strconv.Atoi(portStr)
}
