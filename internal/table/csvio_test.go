package table

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stock", "sh600000.csv")
	tbl := &Table{
		Columns: []string{"股票代码", "交易日期", "收盘价"},
		Rows: [][]string{
			{"sh600000", "2026-08-27", "10.0"},
			{"sh600000", "2026-08-28", "10.5"},
		},
	}

	require.NoError(t, WriteCSV(path, tbl))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns, got.Columns)
	assert.Equal(t, tbl.Rows, got.Rows)
}

func TestWriteCSVEmitsBannerRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	tbl := &Table{
		Columns: []string{"code", "date"},
		Rows:    [][]string{{"sh600000", "2026-08-28"}},
	}

	require.NoError(t, WriteCSV(path, tbl))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	require.NoError(t, err)

	assert.Contains(t, string(decoded), BannerLabel)
}

func TestReadCSVWithoutBanner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.csv")
	require.NoError(t, os.WriteFile(path, []byte("code,date\nsh600000,2026-08-28\n"), 0644))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "date"}, got.Columns)
	assert.Equal(t, [][]string{{"sh600000", "2026-08-28"}}, got.Rows)
}

func TestReadCSVPadsShortRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragged.csv")
	require.NoError(t, os.WriteFile(path, []byte("code,date,close\nsh600000,2026-08-28\n"), 0644))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	require.Len(t, got.Rows, 1)
	assert.Equal(t, []string{"sh600000", "2026-08-28", ""}, got.Rows[0])
}

func TestWriteCSVPlainHasNoBanner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.csv")
	tbl := &Table{
		Columns: []string{"交易日期", "股票代码"},
		Rows:    [][]string{{"2026-08-28", "sh600000"}},
	}

	require.NoError(t, WriteCSVPlain(path, tbl))

	got, err := ReadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, tbl.Columns, got.Columns)
	assert.Equal(t, tbl.Rows, got.Rows)
}

func TestReadFile(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	dir := t.TempDir()

	t.Run("missing file yields empty table", func(t *testing.T) {
		got, err := ReadFile(filepath.Join(dir, "nope.csv"), logger)
		require.NoError(t, err)
		assert.True(t, got.Empty())
	})

	t.Run("unknown extension yields empty table", func(t *testing.T) {
		path := filepath.Join(dir, "data.parquet")
		require.NoError(t, os.WriteFile(path, []byte("binary"), 0644))

		got, err := ReadFile(path, logger)
		require.NoError(t, err)
		assert.True(t, got.Empty())
	})

	t.Run("csv is loaded", func(t *testing.T) {
		path := filepath.Join(dir, "data.csv")
		require.NoError(t, os.WriteFile(path, []byte("code\nsh600000\n"), 0644))

		got, err := ReadFile(path, logger)
		require.NoError(t, err)
		assert.Len(t, got.Rows, 1)
	})
}
