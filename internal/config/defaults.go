package config

import "github.com/zigilabs/amazon-mcp/internal/common"

// NewDefaultConfig creates a configuration with default values.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 4270,
			Host: "localhost",
		},
		Amazon: AmazonConfig{
			DefaultMarketplace:    "UK",
			AdmissionMode:         "wait",
			MaxRetries:            3,
			RequestTimeoutSeconds: 30,
			RateLimits:            map[string]string{},
		},
		Filter: FilterConfig{
			DBPath:      "./data/filters.db",
			SeedOnStart: true,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 1000,
		},
		Logging: common.LoggingConfig{
			Level:   "info",
			Outputs: []string{"console", "file"},
		},
	}
}
