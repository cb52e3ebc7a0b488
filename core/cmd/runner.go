// Package cmd holds the process entrypoint shared by relay binaries: config
// loading, bootstrap, signal handling and logger shutdown.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	coreconfig "github.com/m3rciful/formrelay/core/config"
	"github.com/m3rciful/formrelay/core/logger"
)

// App is a bootstrapped relay.
type App interface {
	Serve(ctx context.Context) error
}

// Options describe how to load configuration, bootstrap the app, and run it.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	LoadConfig func(path string) (*coreconfig.Config, error)
	Bootstrap  func(cfg *coreconfig.Config) (App, error)

	ShutdownLogger func() error
	// Signals stop the app; defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// Run loads configuration, bootstraps the app and serves until a stop signal.
func Run(opts Options) error {
	if opts.Bootstrap == nil {
		return fmt.Errorf("cmd: Bootstrap is required")
	}
	load := opts.LoadConfig
	if load == nil {
		load = coreconfig.Load
	}

	cfgPath := ResolveConfigPath(opts.ConfigEnvVar, opts.DefaultConfigPath)
	if cfgPath != "" {
		log.Printf("loading config: %s", cfgPath)
	}
	cfg, err := load(cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: failed to load config: %w", err)
	}

	startedAt := time.Now()
	application, err := opts.Bootstrap(cfg)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	signals := opts.Signals
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	ctx, cancel := signal.NotifyContext(context.Background(), signals...)
	defer cancel()

	appLog := logger.Component("app")
	appLog.LogAttrs(ctx, slog.LevelInfo, "app ready",
		slog.String("event", "ready"),
		slog.String("transport", cfg.Transport),
		slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
	)

	err = application.Serve(ctx)
	appLog.LogAttrs(context.WithoutCancel(ctx), slog.LevelInfo, "shutting down...",
		slog.String("event", "shutdown"),
	)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// ResolveConfigPath returns the config file named by envVar (CONFIG_PATH when
// empty), else defaultPath when that file exists, else "" for env-only config.
func ResolveConfigPath(envVar, defaultPath string) string {
	if envVar == "" {
		envVar = "CONFIG_PATH"
	}
	if p := os.Getenv(envVar); p != "" {
		return p
	}
	if defaultPath == "" {
		return ""
	}
	if _, err := os.Stat(defaultPath); err != nil {
		return ""
	}
	return defaultPath
}
