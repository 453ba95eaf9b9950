package spapi

import (
	"github.com/zigilabs/amazon-mcp/internal/cache"
	"github.com/zigilabs/amazon-mcp/internal/common"
)

// Result is what every adapter returns: the upstream data plus envelope
// metadata (request_id, marketplace, pagination counters).
type Result struct {
	Data any
	Meta Metadata
}

// Service exposes the SP-API operations the tool surface needs. Read
// operations consult the response cache when one is configured.
type Service struct {
	client *Client
	cache  *cache.ResponseCache
	log    *common.Logger
}

// NewService wires the adapters. cache may be nil to disable caching.
func NewService(client *Client, rc *cache.ResponseCache, log *common.Logger) *Service {
	return &Service{client: client, cache: rc, log: log}
}

func (s *Service) resolveMarketplace(code string) (Marketplace, error) {
	return LookupMarketplace(code)
}
