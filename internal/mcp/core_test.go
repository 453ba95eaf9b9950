package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/zigilabs/amazon-mcp/internal/common"
	"github.com/zigilabs/amazon-mcp/internal/filter/catalog"
	"github.com/zigilabs/amazon-mcp/internal/session"
	"github.com/zigilabs/amazon-mcp/internal/spapi"
)

func requestWith(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// decodeEnvelope parses the JSON envelope out of a tool result.
func decodeEnvelope(t *testing.T, res *mcp.CallToolResult) map[string]any {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content = %v", res.Content)
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content[0] is %T", res.Content[0])
	}
	var env map[string]any
	if err := json.Unmarshal([]byte(text.Text), &env); err != nil {
		t.Fatalf("envelope is not JSON: %v\n%s", err, text.Text)
	}
	return env
}

func TestGate_RejectsMissingSession(t *testing.T) {
	c := &Core{Sessions: session.NewStore()}
	handler := handleGetOrders(c)

	res, err := handler(context.Background(), requestWith(nil))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("missing session accepted")
	}
	env := decodeEnvelope(t, res)
	if env["success"] != false || env["error"] != "auth_failed" {
		t.Errorf("envelope = %v", env)
	}
}

func TestGate_RejectsUnknownToken(t *testing.T) {
	c := &Core{Sessions: session.NewStore()}
	if rej := c.gate(requestWith(map[string]any{"session_token": "bogus"})); rej == nil {
		t.Error("unknown token accepted")
	}
}

func TestAuthenticate_MintsUsableToken(t *testing.T) {
	c := &Core{Sessions: session.NewStore()}
	handler := handleAuthenticate(c)

	res, err := handler(context.Background(), requestWith(nil))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("authenticate failed: %v", res.Content)
	}
	env := decodeEnvelope(t, res)
	data := env["data"].(map[string]any)
	token, _ := data["session_token"].(string)
	if len(token) != 64 {
		t.Fatalf("token = %q", token)
	}

	if rej := c.gate(requestWith(map[string]any{"session_token": token})); rej != nil {
		t.Error("freshly minted token rejected")
	}
}

func TestFilterOptions_ReadsSharedArguments(t *testing.T) {
	req := requestWith(map[string]any{
		"filter_id":       "order_summary",
		"custom_filter":   ".foo",
		"filter_chain":    "a, b",
		"filter_params":   map[string]any{"min": 5.0},
		"reduce_response": true,
	})
	opts := filterOptions(req, "/orders/v0/orders")
	if opts.FilterID != "order_summary" || opts.Expression != ".foo" || opts.Chain != "a, b" {
		t.Errorf("opts = %+v", opts)
	}
	if opts.Params["min"] != 5.0 || !opts.ReduceResponse || opts.Endpoint != "/orders/v0/orders" {
		t.Errorf("opts = %+v", opts)
	}
	if !filtersRequested(opts) {
		t.Error("options should request filtering")
	}
	if filtersRequested(filterOptions(requestWith(nil), "/x")) {
		t.Error("bare request should not request filtering")
	}
}

func TestCollectionOf(t *testing.T) {
	orders := []any{map[string]any{"id": 1}}
	res := &spapi.Result{Data: map[string]any{"orders": orders, "count": 1}}
	got := collectionOf(res, "orders")
	if _, ok := got.([]any); !ok {
		t.Fatalf("collection = %T", got)
	}
	// absent field falls back to the whole payload
	whole := collectionOf(&spapi.Result{Data: map[string]any{"count": 0}}, "orders")
	if _, ok := whole.(map[string]any); !ok {
		t.Errorf("fallback = %T", whole)
	}
}

func TestPostProcess_NoOptionsIsPassthrough(t *testing.T) {
	c := &Core{Sessions: session.NewStore()}
	out, done := c.postProcess(context.Background(), requestWith(nil), "/orders/v0/orders", []any{}, nil)
	if done || out != nil {
		t.Errorf("post-process ran without being asked: %v", out)
	}
}

func TestPostProcess_FilterErrorIsFilterFailed(t *testing.T) {
	c := &Core{Sessions: session.NewStore()}
	req := requestWith(map[string]any{"custom_filter": ".a =="})
	out, done := c.postProcess(context.Background(), req, "/orders/v0/orders", []any{}, nil)
	if !done || out == nil || !out.IsError {
		t.Fatalf("bad expression not rejected: %v", out)
	}
	env := decodeEnvelope(t, out)
	if env["error"] != "filter_failed" {
		t.Errorf("envelope = %v", env)
	}
}

func TestPostProcess_UnknownFilterIsInvalidInput(t *testing.T) {
	cat, err := catalog.Open(":memory:", common.NewSilentLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { cat.Close() })
	c := &Core{Sessions: session.NewStore(), Catalog: cat}

	req := requestWith(map[string]any{"filter_id": "no_such_filter"})
	out, done := c.postProcess(context.Background(), req, "/orders/v0/orders", []any{}, nil)
	if !done || out == nil || !out.IsError {
		t.Fatalf("unknown filter not rejected: %v", out)
	}
	env := decodeEnvelope(t, out)
	if env["error"] != "invalid_input" {
		t.Errorf("envelope = %v", env)
	}

	// a chain naming an unknown step gets the same classification
	req = requestWith(map[string]any{"filter_chain": "no_such_filter"})
	out, _ = c.postProcess(context.Background(), req, "/orders/v0/orders", []any{}, nil)
	env = decodeEnvelope(t, out)
	if env["error"] != "invalid_input" {
		t.Errorf("envelope = %v", env)
	}
}

func TestPostProcess_CustomExpression(t *testing.T) {
	c := &Core{Sessions: session.NewStore()}
	req := requestWith(map[string]any{"custom_filter": `filter(.total > 10) | pick(.id)`})
	collection := []any{
		map[string]any{"id": "a", "total": 5.0},
		map[string]any{"id": "b", "total": 20.0},
	}
	out, done := c.postProcess(context.Background(), req, "/orders/v0/orders", collection, nil)
	if !done || out.IsError {
		t.Fatalf("post-process failed: %v", out)
	}
	env := decodeEnvelope(t, out)
	data := env["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["id"] != "b" {
		t.Errorf("data = %v", data)
	}
	meta := env["metadata"].(map[string]any)
	applied := meta["filters_applied"].([]any)
	if len(applied) != 1 || applied[0] != "custom" {
		t.Errorf("filters_applied = %v", applied)
	}
	if meta["original_size_bytes"] == nil || meta["final_size_bytes"] == nil {
		t.Errorf("size accounting missing: %v", meta)
	}
}
