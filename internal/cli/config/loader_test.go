package config

import (
	"os"
	"path/filepath"
	"testing"

	intconfig "github.com/fieldscope-labs/fieldscope/internal/config"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "fieldscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("staging", "", "")
	fs.String("output-dir", "", "")
	fs.BoolP("verbose", "v", false, "")
	return fs
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(ResetConfig)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, intconfig.DefaultWarehouseType, cfg.Warehouse.Type)
	assert.Equal(t, intconfig.DefaultWarehousePort, cfg.Warehouse.Port)
	assert.Equal(t, intconfig.DefaultStagingDriver, cfg.Staging.Driver)
	assert.Equal(t, intconfig.DefaultStagingPath, cfg.Staging.Path)
	assert.Equal(t, intconfig.DefaultOutputDir, cfg.Report.OutputDir)
	assert.Equal(t, intconfig.DefaultProducts(), cfg.Products)
	assert.False(t, cfg.Verbose)
	assert.Empty(t, GetConfigFileUsed())
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(ResetConfig)

	path := writeConfigFile(t, dir, `
warehouse:
  type: postgres
  host: wh.internal
  port: 5432
  user: svc
staging:
  driver: duckdb
  path: working.db
report:
  output_dir: reports
products: ["Cb Protection"]
`)

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Warehouse.Type)
	assert.Equal(t, "wh.internal", cfg.Warehouse.Host)
	assert.Equal(t, 5432, cfg.Warehouse.Port)
	assert.Equal(t, "duckdb", cfg.Staging.Driver)
	assert.Equal(t, "working.db", cfg.Staging.Path)
	assert.Equal(t, "reports", cfg.Report.OutputDir)
	assert.Equal(t, []string{"Cb Protection"}, cfg.Products)
	assert.Equal(t, path, filepath.Join(dir, GetConfigFileUsed()))
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(ResetConfig)

	writeConfigFile(t, dir, `
warehouse:
  host: from-file
`)
	t.Setenv("FIELDSCOPE_WAREHOUSE__HOST", "from-env")
	t.Setenv("FIELDSCOPE_VERBOSE", "true")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Warehouse.Host)
	assert.True(t, cfg.Verbose)
}

func TestLoadConfigFlagsOverrideEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(ResetConfig)

	t.Setenv("FIELDSCOPE_STAGING__PATH", "env.db")

	fs := newFlagSet()
	require.NoError(t, fs.Set("staging", "flag.db"))
	require.NoError(t, fs.Set("output-dir", "out"))

	cfg, err := LoadConfig("", fs)
	require.NoError(t, err)

	assert.Equal(t, "flag.db", cfg.Staging.Path)
	assert.Equal(t, "out", cfg.Report.OutputDir)
}

func TestLoadConfigUnchangedFlagsIgnored(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Cleanup(ResetConfig)

	cfg, err := LoadConfig("", newFlagSet())
	require.NoError(t, err)

	assert.Equal(t, intconfig.DefaultStagingPath, cfg.Staging.Path)
}

func TestLoadConfigExpandsCredentials(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Cleanup(ResetConfig)

	writeConfigFile(t, dir, `
warehouse:
  user: svc_fieldscope
  password: ${WAREHOUSE_PASSWORD}
`)
	t.Setenv("WAREHOUSE_PASSWORD", "hunter2")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)

	assert.Equal(t, "hunter2", cfg.Warehouse.Password)
}
