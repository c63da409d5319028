package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Mintenance-LTD/mintenance-sub013/internal/app"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/config"
	"github.com/Mintenance-LTD/mintenance-sub013/internal/logging"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	configPath := flag.String("config", "configs/resilience.yaml", "Path to configuration file")
	listenAddr := flag.String("listen", ":9090", "Admin listen address (metrics, health, stats)")
	showVersion := flag.Bool("version", false, "Show version information")
	validateOnly := flag.Bool("validate", false, "Validate configuration and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("resilienced %s (built %s)\n", version, buildTime)
		os.Exit(0)
	}

	loader := config.NewLoader()
	cfg, err := loader.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *validateOnly {
		fmt.Println("Configuration is valid")
		os.Exit(0)
	}

	logger := buildLogger(cfg.Logging)
	defer logger.Sync()
	logging.SetGlobal(logger)

	logging.Info("starting resilienced",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("listen", *listenAddr),
	)

	a, err := app.New(cfg)
	if err != nil {
		logging.Error("failed to build resilience layer", zap.Error(err))
		os.Exit(1)
	}

	// Hot reload of breaker configs
	watcher, err := config.NewWatcher(*configPath)
	if err != nil {
		logging.Error("failed to create config watcher", zap.Error(err))
		os.Exit(1)
	}
	watcher.OnChange(a.ApplyConfig)
	if err := watcher.Start(); err != nil {
		logging.Error("failed to start config watcher", zap.Error(err))
		os.Exit(1)
	}
	defer watcher.Stop()

	srv := &http.Server{
		Addr:         *listenAddr,
		Handler:      a.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		logging.Error("admin server error", zap.Error(err))
		os.Exit(1)
	case sig := <-sigCh:
		logging.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	if err := a.Close(ctx); err != nil {
		logging.Warn("shutdown error", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) *zap.Logger {
	if cfg.Output != "" {
		return logging.NewFile(cfg.Level, cfg.Output, logging.Rotation{
			MaxSizeMB:  cfg.Rotation.MaxSize,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAgeDays: cfg.Rotation.MaxAge,
			Compress:   cfg.Rotation.Compress,
		})
	}
	logger, err := logging.New(cfg.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
