// Package main provides the entry point for the eagpaas gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/xenonsan/eagpaas/pkg/gateway"
	"github.com/xenonsan/eagpaas/pkg/transport"
)

// Version is set at build time.
var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type gatewayOptions struct {
	configPath  string
	address     string
	showVersion bool
}

func parseFlags() gatewayOptions {
	opts := gatewayOptions{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.address, "address", "", "Listen address (overrides config)")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version and exit")
	flag.Parse()
	return opts
}

func setupSignalHandler() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx
}

func loadConfig(opts gatewayOptions) (*gateway.Config, error) {
	cfg := gateway.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := gateway.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if opts.address != "" {
		cfg.Server.Address = opts.address
	}
	return cfg, nil
}

func run() error {
	opts := parseFlags()

	if opts.showVersion {
		fmt.Printf("eagpaas version %s\n", Version)
		return nil
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	gw, err := gateway.New(cfg, transport.NewTCPBackend())
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer func() {
		if cerr := gw.Close(); cerr != nil {
			slog.Warn("gateway close", "error", cerr)
		}
	}()

	listener, err := transport.ListenJSONLines(cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.Server.Address, err)
	}

	ctx := setupSignalHandler()
	return gw.Run(ctx, listener)
}
