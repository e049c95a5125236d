package table

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

// BannerLabel is the attribution label written as the first row of every
// accumulated table file. It is a file-format convention, not data:
// readers skip it when loading such files back in.
const BannerLabel = "数据由邢不行整理，对数据字段有疑问的，可以直接微信私信邢不行，微信号：xbx297"

// ReadCSV loads a GBK-encoded CSV file into a Table. The banner row, when
// present, is skipped; the next row supplies the real column names. Files
// written by third parties without the banner load the same way.
func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	defer file.Close()

	decoder := transform.NewReader(file, simplifiedchinese.GBK.NewDecoder())
	reader := csv.NewReader(decoder)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return &Table{}, nil
	}

	if isBannerRow(records[0]) {
		records = records[1:]
		if len(records) == 0 {
			return &Table{}, nil
		}
	}

	t := &Table{Columns: records[0]}
	for _, record := range records[1:] {
		row := record
		if len(row) < len(t.Columns) {
			padded := make([]string, len(t.Columns))
			copy(padded, row)
			row = padded
		}
		t.Rows = append(t.Rows, row)
	}

	return t, nil
}

// isBannerRow recognizes the two-row header convention: a first row carrying
// only the attribution label.
func isBannerRow(record []string) bool {
	if len(record) == 0 || record[0] != BannerLabel {
		return false
	}
	for _, cell := range record[1:] {
		if cell != "" {
			return false
		}
	}
	return true
}

// WriteCSV writes the table to a GBK-encoded CSV file with the two-row
// header: the banner label over the first column, empty cells over the rest,
// then the real column names. The destination directory is created if
// needed.
func WriteCSV(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer file.Close()

	encoder := transform.NewWriter(file, simplifiedchinese.GBK.NewEncoder())
	writer := csv.NewWriter(encoder)

	banner := make([]string, len(t.Columns))
	if len(banner) > 0 {
		banner[0] = BannerLabel
	}
	if err := writer.Write(banner); err != nil {
		return fmt.Errorf("failed to write banner row: %w", err)
	}
	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to flush encoder: %w", err)
	}

	return file.Sync()
}

// WriteCSVPlain writes the table to a GBK-encoded CSV file with a single
// header row and no banner. Strategy result files use this layout.
func WriteCSVPlain(path string, t *Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create csv: %w", err)
	}
	defer file.Close()

	encoder := transform.NewWriter(file, simplifiedchinese.GBK.NewEncoder())
	writer := csv.NewWriter(encoder)

	if err := writer.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}
	for i, row := range t.Rows {
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return fmt.Errorf("failed to flush encoder: %w", err)
	}

	return file.Sync()
}

// ReadFile loads an accumulated or increment file by extension. A missing
// file yields an empty table; an unrecognized file type is a logged error
// with an empty result rather than a failure.
func ReadFile(path string, logger *slog.Logger) (*Table, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Table{}, nil
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ReadCSV(path)
	default:
		logger.Error("no reader registered for file type",
			slog.String("path", path))
		return &Table{}, nil
	}
}
