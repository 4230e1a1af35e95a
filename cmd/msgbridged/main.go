// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// msgbridged runs a session bridge behind a Unix socket. Hosts issue
// commands as CBOR requests and hold an "events" connection open to
// receive sign requests, conversations and messages.
//
// The daemon serves an in-process network: every client it creates
// lives in the same memnet, which is what the local environment and
// integration harnesses need.
//
// Configuration comes from --config or MSGBRIDGE_CONFIG. Without either
// the built-in defaults apply; there is no search path.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/msgbridge/bridge"
	"github.com/bureau-foundation/msgbridge/host"
	"github.com/bureau-foundation/msgbridge/lib/config"
	"github.com/bureau-foundation/msgbridge/lib/process"
	"github.com/bureau-foundation/msgbridge/lib/pushclient"
	"github.com/bureau-foundation/msgbridge/lib/version"
	"github.com/bureau-foundation/msgbridge/protocol"
	"github.com/bureau-foundation/msgbridge/protocol/memnet"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

type options struct {
	configPath  string
	socketPath  string
	listenTCP   string
	metricsAddr string
	compression string
	verbose     bool
}

func run() error {
	var opts options
	flagSet := pflag.NewFlagSet("msgbridged", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to msgbridge.yaml (default: $MSGBRIDGE_CONFIG)")
	flagSet.StringVar(&opts.socketPath, "socket", "", "host socket path (overrides socket.path)")
	flagSet.StringVar(&opts.listenTCP, "listen-tcp", "", "also accept host connections on this TCP address")
	flagSet.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics on this address (overrides metrics.listen_addr)")
	flagSet.StringVar(&opts.compression, "compression", "none", "compression for outgoing message content: none, zstd or lz4")
	flagSet.BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")
	showVersion := flagSet.Bool("version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		version.Print("msgbridged")
		return nil
	}
	if flagSet.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flagSet.Arg(0))
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	compression, err := protocol.ParseCompression(opts.compression)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	network := memnet.New(memnet.Config{Logger: logger.With("component", "memnet")})
	defer network.Close()

	hub := host.NewHub(host.HubConfig{
		Buffer:  cfg.Socket.EventBuffer,
		Metrics: registry,
		Logger:  logger.With("component", "hub"),
	})

	sessionBridge, err := bridge.New(bridge.Config{
		Network:           network,
		Emitter:           hub,
		Compression:       compression,
		DefaultAppVersion: cfg.Network.AppVersion,
		PushDialer:        pushclient.Dialer(pushclient.Config{Logger: logger.With("component", "push")}),
		Metrics:           registry,
		Logger:            logger.With("component", "bridge"),
	})
	if err != nil {
		return err
	}
	defer sessionBridge.Close()

	service, err := host.NewService(host.ServiceConfig{
		Bridge:            sessionBridge,
		Hub:               hub,
		AuthTimeout:       cfg.Auth.Timeout,
		DefaultPushServer: cfg.Push.Server,
		Logger:            logger.With("component", "host"),
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Socket.Path), 0o755); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	server := host.NewServer(cfg.Socket.Path, logger.With("component", "socket"))
	service.Register(server)

	socketDone := make(chan error, 1)
	go func() {
		socketDone <- server.Serve(ctx)
	}()

	if cfg.Metrics.ListenAddr != "" {
		stopMetrics, err := serveMetrics(ctx, cfg.Metrics.ListenAddr, registry, logger)
		if err != nil {
			cancel()
			<-socketDone
			return err
		}
		defer stopMetrics()
	}

	if opts.listenTCP != "" {
		forwarder := &host.Forwarder{
			ListenAddr: opts.listenTCP,
			SocketPath: cfg.Socket.Path,
			Logger:     logger.With("component", "forward"),
		}
		if err := waitForSocket(ctx, cfg.Socket.Path); err != nil {
			cancel()
			<-socketDone
			return err
		}
		if err := forwarder.Start(ctx); err != nil {
			cancel()
			<-socketDone
			return err
		}
		defer forwarder.Stop()
	}

	logger.Info("msgbridged running",
		"version", version.Info(),
		"socket", cfg.Socket.Path,
		"environment", cfg.Network.Environment,
		"compression", opts.compression,
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		if err := <-socketDone; err != nil {
			logger.Error("socket server", "error", err)
		}
		return nil
	case err := <-socketDone:
		return fmt.Errorf("socket server: %w", err)
	}
}

// loadConfig reads the file named by --config or MSGBRIDGE_CONFIG and
// applies flag overrides. With neither set the defaults are used.
func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv("MSGBRIDGE_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if opts.socketPath != "" {
		cfg.Socket.Path = opts.socketPath
	}
	if opts.metricsAddr != "" {
		cfg.Metrics.ListenAddr = opts.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// serveMetrics starts the Prometheus endpoint and returns a function
// that shuts it down.
func serveMetrics(ctx context.Context, address string, registry *prometheus.Registry, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))
	httpServer := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", listener.Addr().String())

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}, nil
}

// waitForSocket polls until the socket accepts connections, so the
// forwarder's reachability probe does not race the server's bind.
func waitForSocket(ctx context.Context, path string) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(5 * time.Second)
	for {
		conn, err := net.Dial("unix", path)
		if err == nil {
			conn.Close()
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("socket %s did not come up: %w", path, err)
		case <-ticker.C:
		}
	}
}
