// Package ledger persists the rolling record of failed (product, date) sync
// attempts so they can be retried on a later run without re-specifying them.
package ledger

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// Entry records the outcome of the last sync attempt for one product/date.
type Entry struct {
	Product string
	Date    string
	Error   bool
}

// Ledger reads and rewrites the flat ledger file. The file is rewritten
// wholesale after each batch run and retains only rows still flagged as
// errored.
type Ledger struct {
	path   string
	logger *slog.Logger
}

// New creates a ledger backed by the given file path.
func New(path string, logger *slog.Logger) *Ledger {
	return &Ledger{
		path:   path,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// Load reads the persisted entries, deduplicated by (product, date) with the
// first occurrence winning. A missing file yields no entries. The file is
// GBK-encoded like the accumulated tables.
func (l *Ledger) Load() ([]Entry, error) {
	file, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(transform.NewReader(file, simplifiedchinese.GBK.NewDecoder()))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger: %w", err)
	}
	if len(records) <= 1 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var entries []Entry
	for _, record := range records[1:] {
		if len(record) < 3 {
			continue
		}
		key := record[0] + "\x1f" + record[1]
		if seen[key] {
			continue
		}
		seen[key] = true
		entries = append(entries, Entry{
			Product: record[0],
			Date:    record[1],
			Error:   parseBool(record[2]),
		})
	}

	l.logger.Debug("loaded ledger", slog.Int("entries", len(entries)))
	return entries, nil
}

// Save rewrites the ledger with only the rows still flagged as errored.
// An empty input clears the ledger's error rows.
func (l *Ledger) Save(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	file, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("failed to create ledger: %w", err)
	}
	defer file.Close()

	encoder := transform.NewWriter(file, simplifiedchinese.GBK.NewEncoder())
	writer := csv.NewWriter(encoder)
	if err := writer.Write([]string{"product", "date_time", "error"}); err != nil {
		return fmt.Errorf("failed to write ledger header: %w", err)
	}

	kept := 0
	for _, entry := range entries {
		if !entry.Error {
			continue
		}
		record := []string{entry.Product, entry.Date, "true"}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write ledger entry: %w", err)
		}
		kept++
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush ledger: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to flush encoder: %w", err)
	}

	l.logger.Info("ledger saved", slog.Int("error_rows", kept))
	return file.Sync()
}

// Reconcile combines the current run's results with the previous run's
// ledger. When both describe the same (product, date), the current run wins.
// The second return value lists the pairs carried over from the previous
// ledger that are still flagged errored and were not touched this run; these
// are the retry candidates for the "all" and "error" batch modes.
func Reconcile(current, last []Entry) (merged, retries []Entry) {
	seen := make(map[string]bool, len(current)+len(last))
	for _, entry := range current {
		key := entry.Product + "\x1f" + entry.Date
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, entry)
	}
	for _, entry := range last {
		key := entry.Product + "\x1f" + entry.Date
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, entry)
		if entry.Error {
			retries = append(retries, entry)
		}
	}
	return merged, retries
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1":
		return true
	default:
		return false
	}
}
