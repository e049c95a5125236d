// Command sync runs the data synchronization batch: it resolves the product
// whitelist, downloads and merges daily increments, retries previously
// errored dates and fetches whitelisted strategy results. With -schedule it
// stays resident and reruns the batch on a cron expression.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"qcsync/internal/client"
	"qcsync/internal/config"
	"qcsync/internal/infrastructure"
	"qcsync/internal/ledger"
	"qcsync/internal/notify"
	"qcsync/internal/strategy"
	"qcsync/internal/syncer"
)

var version = "dev"

func main() {
	var logger *slog.Logger
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("PANIC RECOVERED: %v\n%s\n", r, debug.Stack())
			if logger != nil {
				logger.Error("sync command panicked",
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())))
			}
			os.Exit(1)
		}
	}()

	mode := flag.String("mode", "", "batch mode: all | new | error (defaults to config)")
	product := flag.String("product", "", "sync a single product instead of the whitelist")
	date := flag.String("date", "", "explicit date (YYYY-MM-DD); repeatable via comma separation")
	parallel := flag.Bool("parallel", true, "merge groups and files in parallel")
	schedule := flag.String("schedule", "", "cron expression; when set the batch reruns on schedule")
	configFile := flag.String("config", "", "path to config file (defaults to config.yaml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}

	// .env is optional; real environment variables win either way.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Printf("Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Sync.Mode = *mode
	}
	cfg.Sync.Parallel = *parallel

	logger = infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	traceFile, err := os.OpenFile("logs/trace.log", os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err == nil {
		shutdown, initErr := infrastructure.InitTracing(ctx, traceFile, version)
		if initErr != nil {
			logger.Warn("tracing disabled", slog.String("error", initErr.Error()))
		} else {
			defer func() {
				flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(flushCtx); err != nil {
					logger.Warn("trace flush failed", slog.String("error", err.Error()))
				}
				traceFile.Close()
			}()
		}
	}

	app, err := buildApp(cfg, logger)
	if err != nil {
		logger.Error("startup failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	products := cfg.Sync.Products
	if *product != "" {
		products = []string{*product}
	}
	var dates []string
	if *date != "" {
		dates = strings.Split(*date, ",")
	}

	if *schedule == "" {
		if err := app.runOnce(ctx, products, cfg.Sync.Mode, dates); err != nil {
			logger.Error("batch failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	runner := cron.New()
	_, err = runner.AddFunc(*schedule, func() {
		if err := app.runOnce(ctx, products, cfg.Sync.Mode, dates); err != nil {
			logger.Error("scheduled batch failed", slog.String("error", err.Error()))
		}
	})
	if err != nil {
		logger.Error("invalid schedule", slog.String("schedule", *schedule), slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("scheduler started", slog.String("schedule", *schedule))
	runner.Start()
	<-ctx.Done()

	stopCtx := runner.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		logger.Warn("scheduler stop timed out")
	}
	logger.Info("scheduler stopped")
}

// app wires the batch components once at startup.
type app struct {
	cfg      *config.Config
	syncer   *syncer.Syncer
	fetcher  *strategy.Fetcher
	notifier *notify.Notifier
	logger   *slog.Logger
}

// buildApp constructs the client, resolves the remote schema policies and
// wires the sync orchestrator and strategy fetcher.
func buildApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	paths, err := config.NewPaths(cfg.Sync.DataDir, cfg.Strategy.ResultDir)
	if err != nil {
		return nil, err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	notifier := notify.New(cfg.Notify, logger)

	apiClient, err := client.New(cfg.API, logger, notifier)
	if err != nil {
		return nil, fmt.Errorf("failed to create api client: %w", err)
	}

	bootCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	policies, err := apiClient.DataInfo(bootCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema policies: %w", err)
	}
	plans, err := syncer.BuildPlans(policies)
	if err != nil {
		return nil, fmt.Errorf("invalid schema policies: %w", err)
	}
	logger.Info("schema policies loaded", slog.Int("products", len(plans)))

	metrics := infrastructure.NewSyncMetrics(prometheus.DefaultRegisterer)
	led := ledger.New(paths.LedgerFile, logger)

	return &app{
		cfg:      cfg,
		syncer:   syncer.New(apiClient, paths, cfg.Sync, plans, led, logger, notifier, metrics),
		fetcher:  strategy.NewFetcher(apiClient, paths.StrategyDir, logger, metrics),
		notifier: notifier,
		logger:   logger,
	}, nil
}

// runOnce runs one full batch: the product sync plus the strategy whitelist.
// Each run gets its own ID so scheduled runs can be told apart in the logs.
func (a *app) runOnce(ctx context.Context, products []string, mode string, dates []string) error {
	start := time.Now()
	runLogger := a.logger.With(slog.String("run_id", uuid.NewString()))
	runLogger.Info("batch starting",
		slog.String("mode", mode),
		slog.Int("products", len(products)))

	// Scoped copies so every line of this run carries the run id.
	runSyncer := a.syncer.WithLogger(runLogger)
	runFetcher := a.fetcher.WithLogger(runLogger)

	if err := runSyncer.UpdateAll(ctx, products, mode, dates); err != nil {
		return err
	}

	for _, entry := range a.cfg.Strategy.Whitelist {
		sel, err := runFetcher.Fetch(ctx, entry.Strategy, entry.Period, entry.Count)
		if err != nil {
			runLogger.Error("strategy fetch failed",
				slog.String("strategy", entry.Strategy),
				slog.String("error", err.Error()))
			continue
		}

		xlsxPath := strings.TrimSuffix(runFetcher.ResultPath(entry.Strategy, entry.Period, entry.Count), ".csv") + ".xlsx"
		if err := strategy.ExportXLSX(sel, xlsxPath); err != nil {
			runLogger.Warn("strategy export failed",
				slog.String("strategy", entry.Strategy),
				slog.String("error", err.Error()))
		}
	}

	elapsed := time.Since(start).Round(time.Second)
	runLogger.Info("batch complete", slog.Duration("elapsed", elapsed))
	a.notifier.Info(ctx, fmt.Sprintf("本次更新用时：%s", elapsed))
	return nil
}
