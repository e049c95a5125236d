package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("QCSYNC_API_KEY", "env-key")
	t.Setenv("QCSYNC_API_UUID", "env-uuid")

	cfg, err := Load(filepath.Join(t.TempDir(), "definitely-missing.yaml"))
	require.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QCSYNC_API_KEY", "env-key")
	t.Setenv("QCSYNC_API_UUID", "env-uuid")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.API.Key)
	assert.Equal(t, "all", cfg.Sync.Mode)
	assert.Equal(t, "data", cfg.Sync.DataDir)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	t.Setenv("QCSYNC_API_KEY", "env-key")
	t.Setenv("QCSYNC_API_UUID", "env-uuid")
	t.Setenv("QCSYNC_SYNC_MODE", "sometimes")

	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadFileOverlay(t *testing.T) {
	t.Setenv("QCSYNC_API_KEY", "env-key")
	t.Setenv("QCSYNC_API_UUID", "env-uuid")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
api:
  key: file-key
sync:
  data_dir: /srv/qcsync/data
  products:
    - stock
    - index
  product_names:
    stock: 股票日线
strategy:
  whitelist:
    - strategy: small-market-value
      period: 周
      count: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Credentials from the environment win over the file.
	assert.Equal(t, "env-key", cfg.API.Key)
	assert.Equal(t, "/srv/qcsync/data", cfg.Sync.DataDir)
	assert.Equal(t, []string{"stock", "index"}, cfg.Sync.Products)
	assert.Equal(t, "股票日线", cfg.Sync.ProductNames["stock"])

	require.Len(t, cfg.Strategy.Whitelist, 1)
	assert.Equal(t, StrategyEntry{Strategy: "small-market-value", Period: "周", Count: 3}, cfg.Strategy.Whitelist[0])
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	cfg.API.Key = "k"
	cfg.API.UUID = "u"
	assert.NoError(t, cfg.validate())
}

func TestNewPathsLayout(t *testing.T) {
	root := t.TempDir()
	paths, err := NewPaths(filepath.Join(root, "data"), filepath.Join(root, "strategy"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "data", "temp"), paths.TempDir)
	assert.Equal(t, filepath.Join(root, "data", "xbx_temporary_data"), paths.ExtractDir)
	assert.Equal(t, filepath.Join(root, "data", "error.csv"), paths.LedgerFile)

	assert.Equal(t, filepath.Join(root, "data", "stock"), paths.ProductDir("stock"))
	assert.Equal(t, filepath.Join(root, "data", "temp", "stock"), paths.ProductTempDir("stock"))
	assert.Equal(t, filepath.Join(root, "data", "xbx_temporary_data", "stock"), paths.ProductExtractDir("stock"))
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	paths, err := NewPaths(filepath.Join(root, "data"), filepath.Join(root, "strategy"))
	require.NoError(t, err)

	require.NoError(t, paths.EnsureDirectories())
	require.NoError(t, paths.EnsureProductDirectories("stock"))

	assert.DirExists(t, paths.TempDir)
	assert.DirExists(t, paths.ProductExtractDir("stock"))

	// Idempotent.
	assert.NoError(t, paths.EnsureProductDirectories("stock"))
}
