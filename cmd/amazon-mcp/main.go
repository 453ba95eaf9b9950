package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/zigilabs/amazon-mcp/internal/cache"
	"github.com/zigilabs/amazon-mcp/internal/common"
	"github.com/zigilabs/amazon-mcp/internal/config"
	"github.com/zigilabs/amazon-mcp/internal/filter/catalog"
	mcptools "github.com/zigilabs/amazon-mcp/internal/mcp"
	"github.com/zigilabs/amazon-mcp/internal/session"
	"github.com/zigilabs/amazon-mcp/internal/spapi"
)

const serverName = "Amazon-SP-MCP"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serverName, err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "amazon-mcp.toml", "Path to config file")
	httpMode := flag.Bool("http", false, "Use streamable HTTP transport instead of stdio")
	port := flag.Int("port", 0, "Override the HTTP port")
	host := flag.String("host", "", "Override the HTTP bind host")
	flag.Parse()

	cfg, err := config.LoadFromFile(*configFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	config.ApplyFlagOverrides(cfg, *port, *host)

	common.LoadVersionFromFile()
	logger := common.NewLoggerFromConfig(cfg.Logging)
	logger.Info().
		Str("version", common.GetVersion()).
		Str("marketplace", cfg.Amazon.DefaultMarketplace).
		Msg("starting")

	core, cat, err := buildCore(cfg, logger)
	if err != nil {
		return err
	}
	defer cat.Close()

	mcpServer := server.NewMCPServer(
		serverName,
		common.GetVersion(),
		server.WithToolCapabilities(true),
	)
	mcptools.RegisterTools(mcpServer, core)

	if *httpMode {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		httpServer := server.NewStreamableHTTPServer(mcpServer,
			server.WithStateLess(true),
		)
		logger.Info().Str("addr", addr).Msg("serving streamable HTTP")
		return httpServer.Start(addr)
	}

	return server.ServeStdio(mcpServer)
}

// buildCore wires the credential manager, rate limiter, SP-API client,
// response cache, filter catalog, and session store.
func buildCore(cfg *config.Config, logger *common.Logger) (*mcptools.Core, *catalog.Store, error) {
	creds, err := spapi.NewCredentialManager(spapi.CredentialConfig{
		LWAClientID:        cfg.Amazon.LWAClientID,
		LWAClientSecret:    cfg.Amazon.LWAClientSecret,
		LWARefreshToken:    cfg.Amazon.LWARefreshToken,
		AWSAccessKeyID:     cfg.Amazon.AWSAccessKeyID,
		AWSSecretAccessKey: cfg.Amazon.AWSSecretAccessKey,
		RoleARN:            cfg.Amazon.RoleARN,
		LWAEndpoint:        cfg.Amazon.LWAEndpoint,
	}, &http.Client{Timeout: 30 * time.Second}, logger)
	if err != nil {
		return nil, nil, err
	}

	limiter, err := spapi.NewRateLimiter(cfg.Amazon.AdmissionMode, cfg.Amazon.RateLimits)
	if err != nil {
		return nil, nil, fmt.Errorf("configuring rate limits: %w", err)
	}

	var rc *cache.ResponseCache
	if cfg.Cache.Enabled {
		rc = cache.New(cfg.Cache.MaxEntries)
	}

	client := spapi.NewClient(creds, limiter, logger,
		cfg.Amazon.MaxRetries, cfg.Amazon.RequestTimeoutSeconds, cfg.Amazon.EndpointOverride)
	service := spapi.NewService(client, rc, logger)

	if dir := filepath.Dir(cfg.Filter.DBPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating filter db directory: %w", err)
		}
	}
	cat, err := catalog.Open(cfg.Filter.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("opening filter catalog: %w", err)
	}
	if cfg.Filter.SeedOnStart {
		filters, chains, err := cat.ImportSeed(context.Background())
		if err != nil {
			cat.Close()
			return nil, nil, fmt.Errorf("seeding filter catalog: %w", err)
		}
		logger.Info().Int("filters", filters).Int("chains", chains).Msg("filter catalog seeded")
	}

	core := &mcptools.Core{
		Sessions:           session.NewStore(),
		Service:            service,
		Catalog:            cat,
		Log:                logger,
		DefaultMarketplace: cfg.Amazon.DefaultMarketplace,
	}
	return core, cat, nil
}
