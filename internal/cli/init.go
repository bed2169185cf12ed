// Package cli provides the monity command line: scripted sub-commands, the
// interactive menu, and the initialization shared by cmd/monity and
// cmd/monity-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"monity/internal/amqp"
	"monity/internal/cache"
	"monity/internal/config"
	"monity/internal/core"
	applog "monity/internal/log"
	"monity/internal/services"
)

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger. An invalid level falls back to info.
func SetupLogger(level string) *applog.Logger {
	cfg := applog.DefaultConfig()
	if lvl, err := applog.ParseLevel(level); err == nil {
		cfg.Level = lvl
	}
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
func LoadAndValidateConfig(configFile string) (*config.Config, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// BuildService wires the ledger service described by cfg: the totals cache
// when CACHE_TTL is positive, and the event publisher when AMQP_URL is set.
// An unreachable broker is logged and events are disabled. The returned
// function releases both.
func BuildService(cfg *config.Config, logger *applog.Logger) (*services.LedgerService, func(), error) {
	opts, err := cfg.ServiceOptions()
	if err != nil {
		return nil, nil, err
	}

	var closers []func()
	var totals cache.Cache[core.Money]
	if cfg.CacheTTL > 0 {
		store, err := cache.New[core.Money](cache.Config{MaxItems: cache.DefaultConfig().MaxItems, TTL: cfg.CacheTTL})
		if err != nil {
			return nil, nil, err
		}
		totals = store
		closers = append(closers, store.Close)
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, ledger events disabled", applog.FieldError, err)
		} else {
			publisher = client
			closers = append(closers, func() { _ = client.Close() })
		}
	}

	svc := services.NewLedgerService(opts, totals, publisher, logger)
	return svc, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. cleanup,
// if not nil, runs once the signal arrives, before the context is cancelled.
func GracefulShutdown(logger *applog.Logger, cleanup func()) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			if cleanup != nil {
				cleanup()
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// Fatal logs err and exits with status 1.
func Fatal(logger *applog.Logger, msg string, err error) {
	logger.Error(msg, applog.FieldError, err)
	os.Exit(1)
}
