package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, 4270, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "UK", cfg.Amazon.DefaultMarketplace)
	assert.Equal(t, "wait", cfg.Amazon.AdmissionMode)
	assert.Equal(t, 3, cfg.Amazon.MaxRetries)
	assert.Equal(t, 30, cfg.Amazon.RequestTimeoutSeconds)
	assert.True(t, cfg.Filter.SeedOnStart)
	assert.NotEmpty(t, cfg.Filter.DBPath)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 1000, cfg.Cache.MaxEntries)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile_OverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "amazon-mcp.toml")
	content := `
[server]
port = 9000

[amazon]
default_marketplace = "DE"
admission_mode = "fail_fast"
max_retries = 5

[amazon.rate_limits]
"/orders/v0/orders" = "1,5"

[filter]
db_path = ":memory:"
seed_on_start = false

[cache]
enabled = false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	// untouched values keep defaults
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "DE", cfg.Amazon.DefaultMarketplace)
	assert.Equal(t, "fail_fast", cfg.Amazon.AdmissionMode)
	assert.Equal(t, 5, cfg.Amazon.MaxRetries)
	assert.Equal(t, "1,5", cfg.Amazon.RateLimits["/orders/v0/orders"])
	assert.Equal(t, ":memory:", cfg.Filter.DBPath)
	assert.False(t, cfg.Filter.SeedOnStart)
	assert.False(t, cfg.Cache.Enabled)
}

func TestLoadFromFiles_LaterFileWins(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	local := filepath.Join(dir, "local.toml")
	require.NoError(t, os.WriteFile(base, []byte("[server]\nport = 9000\nhost = \"base\"\n"), 0o644))
	require.NoError(t, os.WriteFile(local, []byte("[server]\nport = 9001\n"), 0o644))

	cfg, err := LoadFromFiles(base, local)
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port, "later file overrides")
	assert.Equal(t, "base", cfg.Server.Host, "earlier file survives where the later one is silent")
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/amazon-mcp.toml")
	assert.Error(t, err)
}

func TestLoadFromFile_BadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server\nport ="), 0o644))
	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LWA_CLIENT_ID", "env-client")
	t.Setenv("AWS_ACCESS_KEY_ID", "env-akid")
	t.Setenv("AMZN_MCP_SERVER_PORT", "4444")
	t.Setenv("AMZN_MCP_DEFAULT_MARKETPLACE", "US")
	t.Setenv("AMZN_MCP_LOG_LEVEL", "debug")

	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.Amazon.LWAClientID)
	assert.Equal(t, "env-akid", cfg.Amazon.AWSAccessKeyID)
	assert.Equal(t, 4444, cfg.Server.Port)
	assert.Equal(t, "US", cfg.Amazon.DefaultMarketplace)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()
	ApplyFlagOverrides(cfg, 8080, "0.0.0.0")
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)

	// zero values leave config untouched
	ApplyFlagOverrides(cfg, 0, "")
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}
