package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"qcsync/internal/ledger"
)

// UpdateAll runs a batch sync over the product whitelist.
//
// Mode "new" fetches the currently available dates for every product. Mode
// "error" only retries (product, date) pairs flagged errored in the ledger
// from the previous run. Mode "all" does both: the "new" pass first, then
// retries of previously errored pairs the current run did not already cover;
// current-run results take precedence over stale ledger rows. The ledger is
// rewritten afterwards with only the rows still flagged errored.
//
// Explicit dates, when given, override date resolution for the "new" pass.
// A failure of one (product, date) attempt never aborts the batch.
func (s *Syncer) UpdateAll(ctx context.Context, products []string, mode string, dates []string) error {
	switch mode {
	case ModeAll, ModeNew, ModeError:
	default:
		return fmt.Errorf("unknown batch mode %q", mode)
	}

	lastEntries, err := s.ledger.Load()
	if err != nil {
		s.logger.Warn("failed to load error ledger, starting fresh",
			slog.String("error", err.Error()))
	}

	var current []ledger.Entry
	if mode == ModeAll || mode == ModeNew {
		for _, product := range products {
			s.notifier.Info(ctx, "开始更新:"+s.displayName(product))

			dateList := dates
			if len(dateList) == 0 {
				resolved, err := s.api.LatestDates(ctx, product)
				if err != nil {
					s.logger.Error("failed to list available dates",
						slog.String("product", product),
						slog.String("error", err.Error()))
					current = append(current, ledger.Entry{Product: product, Error: true})
					continue
				}
				dateList = resolved
			}

			for _, date := range dateList {
				current = append(current, s.syncGuarded(ctx, product, date))
			}
		}
	}

	merged, retries := ledger.Reconcile(current, lastEntries)

	if mode == ModeAll || mode == ModeError {
		index := make(map[string]int, len(merged))
		for i, entry := range merged {
			index[entry.Product+"\x1f"+entry.Date] = i
		}

		for _, candidate := range retries {
			entry := s.syncGuarded(ctx, candidate.Product, candidate.Date)
			if i, ok := index[candidate.Product+"\x1f"+candidate.Date]; ok {
				merged[i].Error = entry.Error
			} else {
				merged = append(merged, entry)
			}
		}
	}

	if err := s.ledger.Save(merged); err != nil {
		return fmt.Errorf("failed to persist error ledger: %w", err)
	}

	s.notifier.Info(ctx, "所有数据更新完成")
	return nil
}

// syncGuarded runs one sync attempt and converts any panic into an errored
// result record so a single bad product/date cannot abort the batch.
func (s *Syncer) syncGuarded(ctx context.Context, product, date string) (entry ledger.Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			s.logger.Error("sync attempt panicked",
				slog.String("product", product),
				slog.String("date", date),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
			s.notifier.Warn(ctx, fmt.Sprintf("发生报错，错误信息为%v", rec))
			entry = ledger.Entry{Product: product, Date: date, Error: true}
		}
	}()

	return s.SyncProduct(ctx, product, date)
}

// displayName resolves a product's notification name from configuration.
func (s *Syncer) displayName(product string) string {
	if name, ok := s.cfg.ProductNames[product]; ok {
		return name
	}
	return product
}
