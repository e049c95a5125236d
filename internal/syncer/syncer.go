// Package syncer orchestrates incremental data synchronization: it resolves
// dates and download links, downloads and extracts increments, dispatches the
// product's merge strategy and maintains the cross-run error ledger.
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"qcsync/internal/archive"
	"qcsync/internal/client"
	"qcsync/internal/config"
	"qcsync/internal/infrastructure"
	"qcsync/internal/ledger"
	"qcsync/internal/table"
)

// Batch modes.
const (
	ModeAll   = "all"
	ModeNew   = "new"
	ModeError = "error"
)

// DataAPI is the slice of the data API client the orchestrator needs.
type DataAPI interface {
	DownloadLink(ctx context.Context, product, date string) (string, error)
	LatestDates(ctx context.Context, product string) ([]string, error)
	Download(ctx context.Context, fileURL, destPath string) (int64, error)
}

// Syncer coordinates sync attempts for products and dates.
type Syncer struct {
	api      DataAPI
	paths    *config.Paths
	cfg      config.SyncConfig
	plans    map[string]Plan
	ledger   *ledger.Ledger
	logger   *slog.Logger
	notifier client.Notifier
	metrics  *infrastructure.SyncMetrics
	tracer   trace.Tracer

	// now is a test hook for the stale-date guard and the temp sweep.
	now func() time.Time
}

// New creates a sync orchestrator. The plans must already be validated by
// BuildPlans.
func New(api DataAPI, paths *config.Paths, cfg config.SyncConfig, plans map[string]Plan,
	led *ledger.Ledger, logger *slog.Logger, notifier client.Notifier,
	metrics *infrastructure.SyncMetrics) *Syncer {
	return &Syncer{
		api:      api,
		paths:    paths,
		cfg:      cfg,
		plans:    plans,
		ledger:   led,
		logger:   logger.With(slog.String("component", "syncer")),
		notifier: notifier,
		metrics:  metrics,
		tracer:   otel.Tracer(infrastructure.TracerName),
		now:      time.Now,
	}
}

// WithLogger returns a copy of the syncer logging through the given logger.
// Batch runs use this to stamp every line of a run with its run id.
func (s *Syncer) WithLogger(logger *slog.Logger) *Syncer {
	clone := *s
	clone.logger = logger.With(slog.String("component", "syncer"))
	return &clone
}

// workers returns the merge worker pool size: configured value, or available
// cores minus one with a floor of one. Serial mode uses a single worker.
func (s *Syncer) workers() int {
	if !s.cfg.Parallel {
		return 1
	}
	if s.cfg.Workers > 0 {
		return s.cfg.Workers
	}
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// SyncProduct runs one sync attempt for a product and date and returns the
// result record. An empty date resolves to the newest available remote date.
// Failures are contained: the entry's Error flag is set and the reason is
// logged, but no error escapes.
func (s *Syncer) SyncProduct(ctx context.Context, product, date string) ledger.Entry {
	ctx, span := s.tracer.Start(ctx, "sync.product",
		trace.WithAttributes(
			attribute.String("product", product),
			attribute.String("date", date),
		))
	defer span.End()

	start := s.now()
	s.metrics.SyncAttemptsTotal.WithLabelValues(product).Inc()
	defer func() {
		s.metrics.SyncDuration.WithLabelValues(product).Observe(time.Since(start).Seconds())
	}()

	entry, err := s.syncOne(ctx, product, date)
	if err != nil {
		entry.Error = true
		s.metrics.SyncFailuresTotal.WithLabelValues(product).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("sync attempt failed",
			slog.String("product", product),
			slog.String("date", entry.Date),
			slog.String("error", err.Error()))
		s.notifier.Warn(ctx, fmt.Sprintf("%s(%s)数据更新失败", product, entry.Date))
	}
	return entry
}

// syncOne is the sync state machine for one (product, date) pair.
func (s *Syncer) syncOne(ctx context.Context, product, date string) (ledger.Entry, error) {
	entry := ledger.Entry{Product: product, Date: date}

	plan, ok := s.plans[product]
	if !ok {
		return entry, fmt.Errorf("no schema policy for product %s", product)
	}

	if date == "" {
		dates, err := s.api.LatestDates(ctx, product)
		if err != nil {
			return entry, fmt.Errorf("failed to resolve latest date: %w", err)
		}
		if len(dates) == 0 {
			return entry, fmt.Errorf("no available dates for product %s", product)
		}
		date = slices.Max(dates)
		entry.Date = date
	}

	// Cost-control guard: the API only serves the last 30 natural days, so
	// retrying anything older burns quota for nothing. A date that does not
	// parse cannot be checked against the window and fails the attempt.
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		return entry, fmt.Errorf("invalid date %q: %w", date, err)
	}
	if !parsed.After(s.now().Add(-s.cfg.StaleAfter)) {
		s.metrics.SyncSkippedTotal.WithLabelValues(product).Inc()
		s.logger.Info("requested date is stale, skipping",
			slog.String("product", product),
			slog.String("date", date))
		s.notifier.Info(ctx, fmt.Sprintf("下载数据：%s，下载时间：%s，所下载数据日期超过30天，直接跳过", product, date))
		return entry, nil
	}

	if err := s.paths.EnsureProductDirectories(product); err != nil {
		return entry, err
	}

	s.logger.Info("resolving download link",
		slog.String("product", product),
		slog.String("date", date))

	link, err := s.api.DownloadLink(ctx, product, date)
	if err != nil {
		return entry, fmt.Errorf("failed to resolve download link: %w", err)
	}

	fileName, err := fileNameFromLink(link)
	if err != nil {
		return entry, err
	}

	downloadPath := filepath.Join(s.paths.ProductTempDir(product), fileName)
	written, err := s.api.Download(ctx, link, downloadPath)
	if err != nil {
		return entry, fmt.Errorf("failed to download increment: %w", err)
	}
	s.metrics.DownloadBytesTotal.WithLabelValues(product).Add(float64(written))
	s.logger.Info("increment downloaded",
		slog.String("product", product),
		slog.String("file", fileName),
		slog.Int64("bytes", written))

	extractDir := s.paths.ProductExtractDir(product)
	format, err := archive.ParseFormat(filepath.Ext(fileName))
	if err != nil {
		return entry, err
	}
	if err := archive.ExtractWithRetry(ctx, downloadPath, format, extractDir); err != nil {
		return entry, fmt.Errorf("failed to extract increment: %w", err)
	}

	switch plan.Strategy {
	case StrategyByGroup:
		err = s.mergeByGroup(ctx, plan, extractDir)
	case StrategyByFile:
		err = s.mergeByFile(ctx, plan, extractDir)
	case StrategyDirectMove:
		err = s.directMove(plan, extractDir)
	default:
		err = fmt.Errorf("unknown merge strategy %q", plan.Strategy)
	}
	if err != nil {
		return entry, err
	}

	if err := os.RemoveAll(extractDir); err != nil {
		return entry, fmt.Errorf("failed to clean extraction directory: %w", err)
	}

	s.sweepTemp(product)

	s.logger.Info("sync attempt complete",
		slog.String("product", product),
		slog.String("date", date))
	return entry, nil
}

// fileNameFromLink derives the payload file name from a signed URL.
func fileNameFromLink(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid download link: %w", err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("download link %q carries no file name", link)
	}
	return name, nil
}

// mergeByGroup splits the extracted increment by the plan's group column and
// merges each group into its own accumulated file, one worker per group up to
// the pool limit. Destinations are disjoint so no locking is needed.
func (s *Syncer) mergeByGroup(ctx context.Context, plan Plan, extractDir string) error {
	increment, err := s.readIncrement(plan, extractDir)
	if err != nil {
		return err
	}
	if increment.Empty() {
		s.logger.Warn("increment carries no rows", slog.String("product", plan.Product))
		return nil
	}

	groups, err := increment.GroupBy(plan.Group)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for _, group := range groups {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			dest := filepath.Join(s.paths.ProductDir(plan.Product), group.Key+".csv")
			return s.mergeInto(plan, group.Table, dest)
		})
	}
	return g.Wait()
}

// mergeByFile walks the extracted files and merges each one into the
// accumulated file at the mirrored relative path. A file whose destination
// does not exist yet is moved into place directly.
func (s *Syncer) mergeByFile(ctx context.Context, plan Plan, extractDir string) error {
	files, err := listFiles(extractDir)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers())
	for _, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			rel, err := filepath.Rel(extractDir, file)
			if err != nil {
				return err
			}
			dest := filepath.Join(s.paths.ProductDir(plan.Product), rel)

			if _, err := os.Stat(dest); os.IsNotExist(err) {
				s.logger.Info("new accumulated file, moving into place",
					slog.String("product", plan.Product),
					slog.String("dest", dest))
				return moveFile(file, dest)
			}

			increment, err := table.ReadFile(file, s.logger)
			if err != nil {
				return err
			}
			increment.NormalizeDates(plan.ParseDates)
			return s.mergeInto(plan, increment, dest)
		})
	}
	return g.Wait()
}

// directMove moves every extracted file to the mirrored location under the
// accumulated root, replacing whatever was there.
func (s *Syncer) directMove(plan Plan, extractDir string) error {
	files, err := listFiles(extractDir)
	if err != nil {
		return err
	}
	for _, file := range files {
		rel, err := filepath.Rel(extractDir, file)
		if err != nil {
			return err
		}
		if err := moveFile(file, filepath.Join(s.paths.ProductDir(plan.Product), rel)); err != nil {
			return err
		}
	}
	return nil
}

// mergeInto merges an increment into the accumulated file at dest and
// rewrites it under the banner-header convention.
func (s *Syncer) mergeInto(plan Plan, increment *table.Table, dest string) error {
	existing, err := table.ReadFile(dest, s.logger)
	if err != nil {
		return fmt.Errorf("failed to read accumulated table %s: %w", dest, err)
	}
	existing.NormalizeDates(plan.ParseDates)

	merged, err := table.Merge(existing, increment, plan.Merge)
	if err != nil {
		return fmt.Errorf("failed to merge into %s: %w", dest, err)
	}

	s.logger.Info("accumulated table updated",
		slog.String("product", plan.Product),
		slog.String("dest", dest),
		slog.Int("increment_rows", len(increment.Rows)),
		slog.Int("existing_rows", len(existing.Rows)),
		slog.Int("merged_rows", len(merged.Rows)))

	if err := table.WriteCSV(dest, merged); err != nil {
		return fmt.Errorf("failed to write accumulated table %s: %w", dest, err)
	}
	return nil
}

// readIncrement loads and concatenates all CSV files of the extracted
// increment, normalizing configured date columns.
func (s *Syncer) readIncrement(plan Plan, extractDir string) (*table.Table, error) {
	files, err := listFiles(extractDir)
	if err != nil {
		return nil, err
	}

	increment := &table.Table{}
	for _, file := range files {
		if strings.ToLower(filepath.Ext(file)) != ".csv" {
			continue
		}
		part, err := table.ReadFile(file, s.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to read increment %s: %w", file, err)
		}
		if increment.Empty() {
			increment = part
			continue
		}
		increment = table.Concat(increment, part)
	}

	increment.NormalizeDates(plan.ParseDates)
	return increment, nil
}

// sweepTemp deletes temp downloads older than the sweep window. The file
// name's date stem is used when it parses; the modification time otherwise.
func (s *Syncer) sweepTemp(product string) {
	dir := s.paths.ProductTempDir(product)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	cutoff := s.now().Add(-s.cfg.SweepAfter)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		var stamp time.Time
		stem := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if parsed, err := time.Parse("2006-01-02", datePart(stem)); err == nil {
			stamp = parsed
		} else if info, err := entry.Info(); err == nil {
			stamp = info.ModTime()
		} else {
			continue
		}

		if stamp.Before(cutoff) {
			target := filepath.Join(dir, entry.Name())
			if err := os.Remove(target); err != nil {
				s.logger.Warn("failed to sweep temp file",
					slog.String("path", target),
					slog.String("error", err.Error()))
			} else {
				s.logger.Debug("swept temp file", slog.String("path", target))
			}
		}
	}
}

// datePart extracts a trailing YYYY-MM-DD token from a file name stem.
func datePart(stem string) string {
	if len(stem) >= 10 {
		tail := stem[len(stem)-10:]
		if _, err := time.Parse("2006-01-02", tail); err == nil {
			return tail
		}
	}
	return stem
}

// listFiles returns all regular files under root, sorted for deterministic
// iteration.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// moveFile renames src to dst, creating the destination directory. Falls
// back to copy-and-delete across filesystems.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := out.ReadFrom(in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
