package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves into an empty directory so no config.yaml or .env is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, DefaultAPIKey, cfg.Source.APIKey)
	assert.Equal(t, 500, cfg.Source.PageSize)
	assert.Equal(t, time.Second, cfg.Source.PageDelay())
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout())
	assert.Equal(t, 3, cfg.Source.MaxRetries)
	assert.Empty(t, cfg.Sync.FinYears)
	assert.Equal(t, 100*time.Millisecond, cfg.Sync.RegionDelay())
	assert.Equal(t, 1, cfg.Sync.Workers)
	assert.Equal(t, "0 2 * * *", cfg.Sync.Schedule)
	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 48, cfg.Monitoring.LookbackWindowHours)
	assert.Equal(t, 36, cfg.Monitoring.StaleAfterHours)
	assert.Equal(t, 12, cfg.Monitoring.RenotifyAfterHours)
	assert.Empty(t, cfg.Monitoring.WebhookURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: file:nrega.db
source:
  page_size: 100
sync:
  fin_years: ["2023-2024", "2024-2025"]
  workers: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:nrega.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 100, cfg.Source.PageSize)
	assert.Equal(t, []string{"2023-2024", "2024-2025"}, cfg.Sync.FinYears)
	assert.Equal(t, 4, cfg.Sync.Workers)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 1000, cfg.Source.PageDelayMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("NREGA_STORE_DRIVER", "postgres")
	t.Setenv("NREGA_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DATA_GOV_API_KEY", "legacy-key")
	t.Setenv("SYNC_FIN_YEARS", " 2022-2023 ,2023-2024,, 2022-2023")
	t.Setenv("DATABASE_URL", "postgres://localhost/nrega")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "legacy-key", cfg.Source.APIKey)
	assert.Equal(t, []string{"2022-2023", "2023-2024"}, cfg.Sync.FinYears)
	assert.Equal(t, "postgres://localhost/nrega", cfg.Store.DatabaseURL)
}

func TestLoadPrefixedEnvWinsOverLegacy(t *testing.T) {
	chdirTemp(t)

	t.Setenv("DATA_GOV_API_KEY", "legacy-key")
	t.Setenv("NREGA_SOURCE_API_KEY", "prefixed-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "prefixed-key", cfg.Source.APIKey)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NREGA_SERVER_PORT=3000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("NREGA_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	chdirTemp(t)
	t.Setenv("NREGA_STORE_DRIVER", "mysql")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store.driver")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Store:  StoreConfig{Driver: "sqlite"},
			Source: SourceConfig{BaseURL: "http://example.test", PageSize: 500},
			Sync:   SyncConfig{Workers: 1},
		}
	}
	assert.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Source.BaseURL = ""
	assert.ErrorContains(t, cfg.Validate(), "source.base_url is required")

	cfg = valid()
	cfg.Source.PageSize = 0
	assert.ErrorContains(t, cfg.Validate(), "page_size must be positive")

	cfg = valid()
	cfg.Sync.Workers = 0
	assert.ErrorContains(t, cfg.Validate(), "workers must be positive")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SplitList("a, b", " c ,a", ""))
	assert.Nil(t, SplitList(" , "))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
