package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/zigilabs/amazon-mcp/internal/filter"
	"github.com/zigilabs/amazon-mcp/internal/spapi"
)

func handleAuthenticate(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		token, err := c.Sessions.Mint()
		if err != nil {
			return errResult(spapi.NewError(spapi.KindInternalError, "could not create session", err)), nil
		}
		if c.Log != nil {
			c.Log.Info().Int("sessions", c.Sessions.Count()).Msg("session created")
		}
		return okResult(map[string]any{
			"session_token": token,
			"note":          "pass session_token to every other tool",
		}, nil), nil
	}
}

// collectionOf pulls the named array out of an adapter result for the
// filter pipeline.
func collectionOf(res *spapi.Result, field string) any {
	if m, ok := res.Data.(map[string]any); ok {
		if v, ok := m[field]; ok {
			return v
		}
	}
	return res.Data
}

func handleGetOrders(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		res, err := c.Service.ListOrders(ctx, spapi.ListOrdersInput{
			Marketplaces:  []string{c.marketplace(request)},
			CreatedAfter:  getString(request, "created_after", ""),
			CreatedBefore: getString(request, "created_before", ""),
			Statuses:      getStringSlice(request, "order_statuses"),
			MaxResults:    getInt(request, "max_results", 0),
		})
		if err != nil {
			return errResult(err), nil
		}
		if out, done := c.postProcess(ctx, request, "/orders/v0/orders", collectionOf(res, "orders"), res.Meta); done {
			return out, nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleGetOrder(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		orderID, rej := requireString(request, "order_id")
		if rej != nil {
			return rej, nil
		}
		res, err := c.Service.GetOrder(ctx, orderID, c.marketplace(request))
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleGetOrderItems(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		orderID, rej := requireString(request, "order_id")
		if rej != nil {
			return rej, nil
		}
		res, err := c.Service.GetOrderItems(ctx, orderID, c.marketplace(request))
		if err != nil {
			return errResult(err), nil
		}
		if out, done := c.postProcess(ctx, request, "/orders/v0/orders/{orderId}/orderItems", collectionOf(res, "order_items"), res.Meta); done {
			return out, nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleGetInventory(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		fulfillment := strings.ToUpper(getString(request, "fulfillment_type", "FBA"))
		skus := getStringSlice(request, "skus")
		marketplace := c.marketplace(request)

		sellerID := getString(request, "seller_id", "")
		if (fulfillment == "FBM" || fulfillment == "ALL") && sellerID == "" {
			return errResult(spapi.NewError(spapi.KindInvalidInput,
				"seller_id is required for FBM and ALL inventory views", nil)), nil
		}

		var fba, fbm *spapi.Result
		var err error
		if fulfillment == "FBA" || fulfillment == "ALL" {
			fba, err = c.Service.GetInventory(ctx, spapi.GetInventoryInput{
				Marketplace: marketplace,
				SKUs:        skus,
				Details:     getBool(request, "details", false),
				MaxResults:  getInt(request, "max_results", 0),
			})
			if err != nil {
				return errResult(err), nil
			}
		}
		if fulfillment == "FBM" || fulfillment == "ALL" {
			fbm, err = c.Service.GetFbmInventory(ctx, sellerID, marketplace, skus)
			if err != nil {
				return errResult(err), nil
			}
		}

		switch fulfillment {
		case "FBA":
			if out, done := c.postProcess(ctx, request, "/fba/inventory/v1/summaries", collectionOf(fba, "inventory"), fba.Meta); done {
				return out, nil
			}
			return okResult(fba.Data, fba.Meta), nil
		case "FBM":
			return okResult(fbm.Data, fbm.Meta), nil
		case "ALL":
			meta := spapi.Metadata{"fulfillment_type": "ALL"}
			for k, v := range fba.Meta {
				meta[k] = v
			}
			// the FBM warning survives the merge
			for k, v := range fbm.Meta {
				meta[k] = v
			}
			return okResult(map[string]any{
				"fba": fba.Data,
				"fbm": fbm.Data,
			}, meta), nil
		}
		return errResult(spapi.NewError(spapi.KindInvalidInput,
			fmt.Sprintf("fulfillment_type must be FBA, FBM, or ALL, got %q", fulfillment), nil)), nil
	}
}

func handleUpdateFbmInventory(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		sellerID, rej := requireString(request, "seller_id")
		if rej != nil {
			return rej, nil
		}
		sku, rej := requireString(request, "sku")
		if rej != nil {
			return rej, nil
		}
		res, err := c.Service.UpdateFbmInventory(ctx, sellerID, sku, c.marketplace(request),
			getInt(request, "quantity", -1), getInt(request, "handling_time", 0),
			getString(request, "restock_date", ""))
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleBulkUpdateFbmInventory(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		sellerID, rej := requireString(request, "seller_id")
		if rej != nil {
			return rej, nil
		}
		raw, ok := request.GetArguments()["updates"].([]any)
		if !ok {
			return errResult(spapi.NewError(spapi.KindInvalidInput, "updates must be an array of {sku, quantity} objects", nil)), nil
		}
		updates := make([]spapi.FbmUpdate, 0, len(raw))
		for i, v := range raw {
			m, ok := v.(map[string]any)
			if !ok {
				return errResult(spapi.NewError(spapi.KindInvalidInput,
					fmt.Sprintf("updates[%d] must be an object", i), nil)), nil
			}
			u := spapi.FbmUpdate{}
			u.SKU, _ = m["sku"].(string)
			if q, ok := m["quantity"].(float64); ok {
				u.Quantity = int(q)
			} else {
				u.Quantity = -1
			}
			if lt, ok := m["fulfillment_latency_days"].(float64); ok {
				u.FulfillmentLatencyDays = int(lt)
			}
			updates = append(updates, u)
		}
		res, err := c.Service.BulkUpdateFbmInventory(ctx, sellerID, c.marketplace(request), updates)
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleGetListing(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		sellerID, rej := requireString(request, "seller_id")
		if rej != nil {
			return rej, nil
		}
		sku, rej := requireString(request, "sku")
		if rej != nil {
			return rej, nil
		}
		res, err := c.Service.GetListing(ctx, spapi.GetListingInput{
			SellerID:     sellerID,
			SKU:          sku,
			Marketplace:  c.marketplace(request),
			IncludedData: getStringSlice(request, "included_data"),
		})
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleUpdateListing(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		sellerID, rej := requireString(request, "seller_id")
		if rej != nil {
			return rej, nil
		}
		sku, rej := requireString(request, "sku")
		if rej != nil {
			return rej, nil
		}
		res, err := c.Service.UpdateListing(ctx, spapi.UpdateListingInput{
			SellerID:     sellerID,
			SKU:          sku,
			Marketplace:  c.marketplace(request),
			Title:        getString(request, "title", ""),
			BulletPoints: getStringSlice(request, "bullet_points"),
			Description:  getString(request, "description", ""),
			SearchTerms:  getStringSlice(request, "search_terms"),
			Brand:        getString(request, "brand", ""),
			Manufacturer: getString(request, "manufacturer", ""),
		})
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleUpdateListingPrice(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		sellerID, rej := requireString(request, "seller_id")
		if rej != nil {
			return rej, nil
		}
		sku, rej := requireString(request, "sku")
		if rej != nil {
			return rej, nil
		}
		price, rej := requireString(request, "new_price")
		if rej != nil {
			return rej, nil
		}
		res, err := c.Service.UpdatePrice(ctx, sellerID, sku, c.marketplace(request),
			price, getString(request, "currency", ""))
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleSubmitFeed(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		feedType, rej := requireString(request, "feed_type")
		if rej != nil {
			return rej, nil
		}
		content, rej := requireString(request, "content")
		if rej != nil {
			return rej, nil
		}
		res, err := c.Service.SubmitFeed(ctx, spapi.SubmitFeedInput{
			FeedType:    feedType,
			Marketplace: c.marketplace(request),
			Content:     []byte(content),
			Format:      getString(request, "format", "XML"),
		})
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleGetFeeds(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		if feedID := getString(request, "feed_id", ""); feedID != "" {
			res, err := c.Service.GetFeed(ctx, feedID, c.marketplace(request))
			if err != nil {
				return errResult(err), nil
			}
			return okResult(res.Data, res.Meta), nil
		}
		res, err := c.Service.ListFeeds(ctx, c.marketplace(request),
			getStringSlice(request, "feed_types"),
			getStringSlice(request, "processing_statuses"))
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleRequestReport(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		reportType, rej := requireString(request, "report_type")
		if rej != nil {
			return rej, nil
		}
		res, err := c.Service.RequestReport(ctx, spapi.RequestReportInput{
			ReportType:    reportType,
			Marketplaces:  []string{c.marketplace(request)},
			DataStartTime: getString(request, "data_start_time", ""),
			DataEndTime:   getString(request, "data_end_time", ""),
		})
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleGetReport(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		reportID, rej := requireString(request, "report_id")
		if rej != nil {
			return rej, nil
		}
		res, err := c.Service.GetReport(ctx, reportID, c.marketplace(request))
		if err != nil {
			return errResult(err), nil
		}
		return okResult(res.Data, res.Meta), nil
	}
}

func handleListFilters(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}
		if getBool(request, "export", false) {
			dump, err := c.Catalog.Export(ctx)
			if err != nil {
				return errResult(spapi.NewError(spapi.KindInternalError, "exporting catalog", err)), nil
			}
			return okResult(dump, nil), nil
		}
		listing, err := c.Catalog.ListGrouped(ctx)
		if err != nil {
			return errResult(spapi.NewError(spapi.KindInternalError, "listing filters", err)), nil
		}
		stats, err := c.Catalog.Stats(ctx)
		if err != nil {
			return errResult(spapi.NewError(spapi.KindInternalError, "reading catalog stats", err)), nil
		}
		listing["stats"] = stats
		return okResult(listing, nil), nil
	}
}

func handleSearchFilters(c *Core) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if rej := c.gate(request); rej != nil {
			return rej, nil
		}

		if id := getString(request, "filter_id", ""); id != "" {
			detail, err := c.Catalog.Detail(ctx, id)
			if errors.Is(err, filter.ErrNotFound) {
				return errResult(spapi.NewError(spapi.KindInvalidInput, fmt.Sprintf("unknown filter %q", id), nil)), nil
			}
			if err != nil {
				return errResult(spapi.NewError(spapi.KindInternalError, "loading filter", err)), nil
			}
			results, err := c.Catalog.Validate(ctx, id)
			if err != nil {
				return errResult(spapi.NewError(spapi.KindInternalError, "validating filter", err)), nil
			}
			return okResult(map[string]any{
				"filter":       detail,
				"test_results": results,
			}, nil), nil
		}

		found, err := c.Catalog.Search(ctx, catalogSearch(request))
		if err != nil {
			return errResult(spapi.NewError(spapi.KindInternalError, "searching filters", err)), nil
		}
		return okResult(map[string]any{
			"filters": found,
			"count":   len(found),
		}, nil), nil
	}
}
