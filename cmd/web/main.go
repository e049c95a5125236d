// Command web serves the chat front end: the bot command webhook, the
// strategy lookup API and the health and metrics endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"qcsync/internal/client"
	"qcsync/internal/config"
	"qcsync/internal/infrastructure"
	"qcsync/internal/notify"
	"qcsync/internal/strategy"
	transporthttp "qcsync/internal/transport/http"
)

var version = "dev"

func main() {
	configFile := flag.String("config", "", "path to config file (defaults to config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	paths, err := config.NewPaths(cfg.Sync.DataDir, cfg.Strategy.ResultDir)
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}

	notifier := notify.New(cfg.Notify, logger)
	apiClient, err := client.New(cfg.API, logger, notifier)
	if err != nil {
		return fmt.Errorf("failed to create api client: %w", err)
	}

	metrics := infrastructure.NewSyncMetrics(prometheus.DefaultRegisterer)
	fetcher := strategy.NewFetcher(apiClient, paths.StrategyDir, logger, metrics)
	chat := strategy.NewChat(fetcher, logger)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      transporthttp.NewRouter(chat, fetcher, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			slog.Int("port", cfg.Server.Port),
			slog.String("version", version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
