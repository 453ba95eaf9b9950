// Package config loads the server configuration with priority:
// built-in defaults -> TOML file(s) -> environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/zigilabs/amazon-mcp/internal/common"
)

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig         `toml:"server"`
	Amazon  AmazonConfig         `toml:"amazon"`
	Filter  FilterConfig         `toml:"filter"`
	Cache   CacheConfig          `toml:"cache"`
	Logging common.LoggingConfig `toml:"logging"`
}

// ServerConfig contains settings for the streamable HTTP transport.
// The stdio transport ignores these.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// AmazonConfig contains SP-API credentials and dispatch settings.
type AmazonConfig struct {
	// Login with Amazon (access token refresh)
	LWAClientID     string `toml:"lwa_client_id"`
	LWAClientSecret string `toml:"lwa_client_secret"`
	LWARefreshToken string `toml:"lwa_refresh_token"`

	// AWS credentials for SigV4. When RoleARN is set the base pair is
	// exchanged for temporary credentials via STS AssumeRole.
	AWSAccessKeyID     string `toml:"aws_access_key_id"`
	AWSSecretAccessKey string `toml:"aws_secret_access_key"`
	RoleARN            string `toml:"role_arn"`

	// DefaultMarketplace is the marketplace code used when a tool call
	// omits one.
	DefaultMarketplace string `toml:"default_marketplace"`

	// AdmissionMode selects rate-limiter behavior: "wait" blocks until a
	// token is available, "fail_fast" returns rate_limit_exceeded with a
	// retry-after hint.
	AdmissionMode string `toml:"admission_mode"`

	// MaxRetries bounds retry attempts after the initial request.
	MaxRetries int `toml:"max_retries"`

	// RequestTimeoutSeconds is the per-attempt HTTP timeout.
	RequestTimeoutSeconds int `toml:"request_timeout_seconds"`

	// EndpointOverride replaces the regional SP-API host. Used in tests.
	EndpointOverride string `toml:"endpoint_override"`

	// LWAEndpoint replaces the LWA token endpoint. Used in tests.
	LWAEndpoint string `toml:"lwa_endpoint"`

	// RateLimits maps a route template to "rate,burst" overriding the
	// built-in table, e.g. "/orders/v0/orders" = "0.0167,20".
	RateLimits map[string]string `toml:"rate_limits"`
}

// FilterConfig contains filter catalog settings.
type FilterConfig struct {
	// DBPath is the sqlite file for the filter catalog. ":memory:" is
	// accepted for ephemeral runs.
	DBPath string `toml:"db_path"`

	// SeedOnStart imports the embedded filter definitions at startup.
	SeedOnStart bool `toml:"seed_on_start"`
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	Enabled    bool `toml:"enabled"`
	MaxEntries int  `toml:"max_entries"`
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config.
// Credential variables use the names the SP-API console documents; server
// and logging overrides use the AMZN_MCP_ prefix.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("LWA_CLIENT_ID"); v != "" {
		config.Amazon.LWAClientID = v
	}
	if v := os.Getenv("LWA_CLIENT_SECRET"); v != "" {
		config.Amazon.LWAClientSecret = v
	}
	if v := os.Getenv("LWA_REFRESH_TOKEN"); v != "" {
		config.Amazon.LWARefreshToken = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		config.Amazon.AWSAccessKeyID = v
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		config.Amazon.AWSSecretAccessKey = v
	}
	if v := os.Getenv("SPAPI_ROLE_ARN"); v != "" {
		config.Amazon.RoleARN = v
	}
	if v := os.Getenv("FILTER_DB_PATH"); v != "" {
		config.Filter.DBPath = v
	}
	if v := os.Getenv("AMZN_MCP_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			config.Server.Port = p
		}
	}
	if v := os.Getenv("AMZN_MCP_SERVER_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("AMZN_MCP_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("AMZN_MCP_DEFAULT_MARKETPLACE"); v != "" {
		config.Amazon.DefaultMarketplace = v
	}
	if v := os.Getenv("AMZN_MCP_ADMISSION_MODE"); v != "" {
		config.Amazon.AdmissionMode = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
