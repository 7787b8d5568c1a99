// Package main implements the dashhub service: it registers the configured
// data sources with the distribution hub, wires the configured charts and
// links into the link dispatcher, and serves metrics and health over HTTP
// until terminated.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/dashhub/config"
	"github.com/c360/dashhub/hub"
	"github.com/c360/dashhub/linking"
	"github.com/c360/dashhub/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "dashhub"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfiguration(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("Starting dashhub",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"sources", len(cfg.Sources),
		"links", len(cfg.Links))

	registry := metric.NewRegistry()

	dataHub, err := hub.New(hub.WithLogger(logger), hub.WithMetrics(registry))
	if err != nil {
		return fmt.Errorf("create hub: %w", err)
	}

	linker, err := linking.New(linking.WithLogger(logger), linking.WithMetrics(registry))
	if err != nil {
		return fmt.Errorf("create linker: %w", err)
	}

	ctx := context.Background()
	if err := registerConfigured(ctx, cfg, dataHub, linker); err != nil {
		return err
	}

	if err := dataHub.Start(ctx); err != nil {
		return fmt.Errorf("start hub: %w", err)
	}

	server := newHTTPServer(cfg, dataHub, linker, registry)
	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	return waitForShutdown(dataHub, server, serverErr, cliCfg.ShutdownTimeout)
}

// loadConfiguration loads the YAML file when given, or the built-in
// defaults, then applies CLI overrides.
func loadConfiguration(cliCfg *CLIConfig) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if cliCfg.ConfigPath != "" {
		loaded, err := config.Load(cliCfg.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
	if cliCfg.ListenAddr != "" {
		cfg.Server.Addr = cliCfg.ListenAddr
	}
	return cfg, cfg.Validate()
}

// registerConfigured wires the configured sources, charts and links.
func registerConfigured(ctx context.Context, cfg *config.Config, dataHub *hub.Hub, linker *linking.Linker) error {
	for _, src := range cfg.Sources {
		desc, err := src.Descriptor(cfg.Defaults)
		if err != nil {
			return fmt.Errorf("source %q: %w", src.ID, err)
		}
		if err := dataHub.RegisterSource(ctx, desc); err != nil {
			return fmt.Errorf("register source %q: %w", src.ID, err)
		}
	}

	for _, widgetID := range cfg.Charts {
		linker.RegisterChart(widgetID)
	}

	for _, link := range cfg.Links {
		if err := linker.RegisterLink(link); err != nil {
			return fmt.Errorf("register link %q: %w", link.ID, err)
		}
	}
	return nil
}

func newHTTPServer(cfg *config.Config, dataHub *hub.Hub, linker *linking.Linker, registry *metric.Registry) *http.Server {
	mux := http.NewServeMux()

	if cfg.Server.Metrics {
		mux.Handle("/metrics", registry.Handler())
	}

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		status := http.StatusOK
		healthy := dataHub.Healthy()
		if !healthy {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"healthy": healthy,
			"linking": linker.Stats(),
		})
	})

	return &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// waitForShutdown blocks until SIGINT/SIGTERM or a server failure, then
// shuts everything down within the timeout.
func waitForShutdown(dataHub *hub.Hub, server *http.Server, serverErr <-chan error, timeout time.Duration) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		slog.Error("HTTP server failed", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown failed", "error", err)
	}
	if err := dataHub.Stop(timeout); err != nil {
		return fmt.Errorf("stop hub: %w", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
