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

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.census.gov/data/2022/acs/acs5", cfg.Census.BaseURL)
	assert.Equal(t, "B25002_001E", cfg.Census.TotalVar)
	assert.Equal(t, "B25002_003E", cfg.Census.VacantVar)
	assert.Empty(t, cfg.Census.APIKey)
	assert.Contains(t, cfg.Geometry.QueryURL, "tigerweb.geo.census.gov")
	assert.Equal(t, 82, cfg.Geometry.Layers.County)
	assert.Equal(t, 8, cfg.Geometry.Layers.Tract)
	assert.Equal(t, 10, cfg.Geometry.Layers.Block)
	assert.Equal(t, 4326, cfg.Geometry.OutSR)
	assert.Equal(t, "name", cfg.Geometry.StateNameProperty)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout())
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 10, cfg.Map.TopN)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Server.SessionTTL())
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
census:
  api_key: abc123
map:
  top_n: 25
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "abc123", cfg.Census.APIKey)
	assert.Equal(t, 25, cfg.Map.TopN)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, "B25002_001E", cfg.Census.TotalVar)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
census:
  api_key: from-file
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("VACANCY_CENSUS_API_KEY", "from-env")
	t.Setenv("VACANCY_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Census.APIKey)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("VACANCY_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("census: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
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

func loadedDefaults(t *testing.T) *Config {
	t.Helper()
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := loadedDefaults(t)
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("layer"))
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")

	// The layer command does not listen.
	assert.NoError(t, cfg.Validate("layer"))
}

func TestValidate_MissingSources(t *testing.T) {
	cfg := loadedDefaults(t)
	cfg.Census.BaseURL = ""
	cfg.Geometry.StatesURL = ""
	cfg.Geometry.QueryURL = ""

	err := cfg.Validate("layer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "census.base_url is required")
	assert.Contains(t, err.Error(), "geometry.states_url or geometry.states_shapefile is required")
	assert.Contains(t, err.Error(), "geometry.query_url is required")

	cfg.Geometry.StatesShapefile = "/data/cb_2022_us_state_20m.shp"
	err = cfg.Validate("layer")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "states_shapefile")
}

func TestValidate_UnknownMode(t *testing.T) {
	cfg := loadedDefaults(t)
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
