// Package mcp binds the SP-API service, the filter catalog, and the session
// gate to the MCP tool surface.
package mcp

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zigilabs/amazon-mcp/internal/common"
	"github.com/zigilabs/amazon-mcp/internal/filter"
	"github.com/zigilabs/amazon-mcp/internal/filter/catalog"
	"github.com/zigilabs/amazon-mcp/internal/session"
	"github.com/zigilabs/amazon-mcp/internal/spapi"
)

// Core carries the dependencies every tool handler needs.
type Core struct {
	Sessions *session.Store
	Service  *spapi.Service
	Catalog  *catalog.Store
	Log      *common.Logger

	DefaultMarketplace string
}

// --- result helpers ---

func envelopeResult(env spapi.Envelope) *mcp.CallToolResult {
	raw, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{mcp.NewTextContent(`{"success":false,"error":"internal_error","message":"failed to encode response"}`)},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(raw))},
		IsError: !env.Success,
	}
}

func okResult(data any, meta spapi.Metadata) *mcp.CallToolResult {
	return envelopeResult(spapi.Ok(data, "", meta))
}

func errResult(err error) *mcp.CallToolResult {
	return envelopeResult(spapi.Fail(err, "", nil))
}

// gate checks the session token; every tool except authenticate calls it
// before reading any other argument. A non-nil result is the rejection to
// return.
func (c *Core) gate(request mcp.CallToolRequest) *mcp.CallToolResult {
	token := request.GetString("session_token", "")
	if err := c.Sessions.Check(token); err != nil {
		return errResult(spapi.NewError(spapi.KindAuthFailed, "authenticate first and pass the returned session_token", err))
	}
	return nil
}

// --- argument helpers ---

func getString(request mcp.CallToolRequest, key, defaultVal string) string {
	return request.GetString(key, defaultVal)
}

func getInt(request mcp.CallToolRequest, key string, defaultVal int) int {
	return request.GetInt(key, defaultVal)
}

func getBool(request mcp.CallToolRequest, key string, defaultVal bool) bool {
	return request.GetBool(key, defaultVal)
}

func getStringSlice(request mcp.CallToolRequest, key string) []string {
	return request.GetStringSlice(key, nil)
}

func requireString(request mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	v, err := request.RequireString(key)
	if err != nil {
		return "", errResult(spapi.NewError(spapi.KindInvalidInput, key+" is required", err))
	}
	return v, nil
}

func getObject(request mcp.CallToolRequest, key string) map[string]any {
	args := request.GetArguments()
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return nil
}

// marketplace resolves the marketplace argument with the configured default.
func (c *Core) marketplace(request mcp.CallToolRequest) string {
	def := c.DefaultMarketplace
	if def == "" {
		def = spapi.DefaultMarketplace
	}
	return getString(request, "marketplace", def)
}

// filterOptions reads the shared post-processing arguments carried by every
// read tool.
func filterOptions(request mcp.CallToolRequest, endpoint string) filter.ApplyOptions {
	return filter.ApplyOptions{
		FilterID:       getString(request, "filter_id", ""),
		Expression:     getString(request, "custom_filter", ""),
		Chain:          getString(request, "filter_chain", ""),
		Params:         getObject(request, "filter_params"),
		ReduceResponse: getBool(request, "reduce_response", false),
		Endpoint:       endpoint,
	}
}

// catalogSearch reads the search_filters arguments into a catalog query.
func catalogSearch(request mcp.CallToolRequest) catalog.SearchQuery {
	return catalog.SearchQuery{
		Endpoint: getString(request, "endpoint", ""),
		Category: getString(request, "category", ""),
		Kind:     getString(request, "kind", ""),
		Tag:      getString(request, "tag", ""),
		Term:     getString(request, "term", ""),
		Limit:    getInt(request, "limit", 0),
	}
}

func filtersRequested(opts filter.ApplyOptions) bool {
	return opts.FilterID != "" || opts.Expression != "" || opts.Chain != "" || opts.ReduceResponse
}

// postProcess runs the filter pipeline over a collection when the request
// asks for it, merging the reduction accounting into the envelope metadata.
// The second return reports whether post-processing handled the response.
func (c *Core) postProcess(ctx context.Context, request mcp.CallToolRequest, endpoint string, collection any, meta spapi.Metadata) (*mcp.CallToolResult, bool) {
	opts := filterOptions(request, endpoint)
	if !filtersRequested(opts) {
		return nil, false
	}
	res, err := filter.Apply(ctx, c.Catalog, collection, opts)
	if err != nil {
		// caller-selection errors are the caller's fault; everything else
		// is the engine's
		kind := spapi.KindFilterFailed
		if errors.Is(err, filter.ErrInvalidSelection) {
			kind = spapi.KindInvalidInput
		}
		return errResult(spapi.NewError(kind, err.Error(), err)), true
	}
	merged := spapi.Metadata{}
	for k, v := range meta {
		merged[k] = v
	}
	for k, v := range res.Meta {
		merged[k] = v
	}
	return okResult(res.Data, merged), true
}
