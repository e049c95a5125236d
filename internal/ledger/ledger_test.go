package ledger

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestLoadMissingFile(t *testing.T) {
	led := New(filepath.Join(t.TempDir(), "error.csv"), testLogger())

	entries, err := led.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSaveKeepsOnlyErrorRows(t *testing.T) {
	led := New(filepath.Join(t.TempDir(), "error.csv"), testLogger())

	require.NoError(t, led.Save([]Entry{
		{Product: "stock", Date: "2026-08-27", Error: true},
		{Product: "stock", Date: "2026-08-28", Error: false},
		{Product: "index", Date: "2026-08-28", Error: true},
	}))

	entries, err := led.Load()
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Product: "stock", Date: "2026-08-27", Error: true},
		{Product: "index", Date: "2026-08-28", Error: true},
	}, entries)
}

func TestSaveEmptyClearsLedger(t *testing.T) {
	led := New(filepath.Join(t.TempDir(), "error.csv"), testLogger())

	require.NoError(t, led.Save([]Entry{{Product: "stock", Date: "2026-08-27", Error: true}}))
	require.NoError(t, led.Save(nil))

	entries, err := led.Load()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLoadDeduplicatesKeepFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.csv")
	content := "product,date_time,error\n" +
		"stock,2026-08-27,true\n" +
		"stock,2026-08-27,false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	led := New(path, testLogger())
	entries, err := led.Load()
	require.NoError(t, err)

	assert.Equal(t, []Entry{{Product: "stock", Date: "2026-08-27", Error: true}}, entries)
}

func TestLoadAcceptsLegacyBoolSpellings(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.csv")
	content := "product,date_time,error\n" +
		"a,2026-08-27,True\n" +
		"b,2026-08-27,1\n" +
		"c,2026-08-27,False\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	led := New(path, testLogger())
	entries, err := led.Load()
	require.NoError(t, err)

	require.Len(t, entries, 3)
	assert.True(t, entries[0].Error)
	assert.True(t, entries[1].Error)
	assert.False(t, entries[2].Error)
}

func TestLedgerFileIsGBKEncoded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "error.csv")
	led := New(path, testLogger())

	require.NoError(t, led.Save([]Entry{
		{Product: "股票日线", Date: "2026-08-28", Error: true},
	}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// The bytes on disk are GBK, not UTF-8.
	assert.NotContains(t, string(raw), "股票日线")
	decoded, err := simplifiedchinese.GBK.NewDecoder().Bytes(raw)
	require.NoError(t, err)
	assert.Contains(t, string(decoded), "股票日线")

	entries, err := led.Load()
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Product: "股票日线", Date: "2026-08-28", Error: true}}, entries)
}

func TestReconcileCurrentWins(t *testing.T) {
	current := []Entry{
		{Product: "stock", Date: "2026-08-28", Error: false},
	}
	last := []Entry{
		{Product: "stock", Date: "2026-08-28", Error: true},
		{Product: "index", Date: "2026-08-27", Error: true},
		{Product: "fund", Date: "2026-08-27", Error: false},
	}

	merged, retries := Reconcile(current, last)

	assert.Equal(t, []Entry{
		{Product: "stock", Date: "2026-08-28", Error: false},
		{Product: "index", Date: "2026-08-27", Error: true},
		{Product: "fund", Date: "2026-08-27", Error: false},
	}, merged)

	// Only carried-over errored pairs are retry candidates.
	assert.Equal(t, []Entry{
		{Product: "index", Date: "2026-08-27", Error: true},
	}, retries)
}

func TestReconcileEmptyInputs(t *testing.T) {
	merged, retries := Reconcile(nil, nil)
	assert.Empty(t, merged)
	assert.Empty(t, retries)
}
