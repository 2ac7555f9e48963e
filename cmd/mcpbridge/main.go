// Command mcpbridge runs a standalone MCP transport bridge: it forwards
// JSON-RPC frames full-duplex between one server-side and one
// client-side transport, described by a JSON configuration file.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"

	"github.com/mcpbridge/mcp-bridge/bridge"
	"github.com/mcpbridge/mcp-bridge/transport"
)

// options mirrors the teacher's flat, go-flags-tagged options struct.
type options struct {
	Config   string `short:"c" long:"config" description:"path to a bridge configuration JSON file" required:"true"`
	LogLevel string `long:"log-level" description:"logrus level (debug, info, warn, error)" default:"info"`
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	if _, err := flags.ParseArgs(&opts, args); err != nil {
		return err
	}

	logger := logrus.New()
	level, err := logrus.ParseLevel(opts.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", opts.LogLevel, err)
	}
	logger.SetLevel(level)

	cfg, err := loadConfig(opts.Config)
	if err != nil {
		return err
	}

	b, err := bridge.New(cfg, bridge.NewLogrusLogger(logger))
	if err != nil {
		return err
	}

	b.OnTransportError(func(source transport.Source, err error) {
		logger.WithField("source", source.String()).Warnf("transport error: %v", err)
	})
	b.OnTransportClosed(func(source transport.Source) {
		logger.WithField("source", source.String()).Info("transport closed")
	})
	b.OnTransportReconnected(func(source transport.Source) {
		logger.WithField("source", source.String()).Info("transport reconnected")
	})
	b.OnServerReconnectRequested(func() bool {
		logger.Warn("server transport closed, attempting to reconnect")
		return true
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := b.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize bridge: %w", err)
	}
	logger.Infof("bridge running: %s -> %s", cfg.ServerTransportKind, cfg.ClientTransportKind)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	return b.Shutdown(shutdownCtx)
}

const shutdownGrace = 10 * time.Second

func loadConfig(path string) (bridge.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return bridge.Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg bridge.Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return bridge.Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return bridge.Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}
