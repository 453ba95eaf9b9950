package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Shared argument options for tools that hit SP-API read endpoints.
func sessionOption() mcp.ToolOption {
	return mcp.WithString("session_token",
		mcp.Required(),
		mcp.Description("Session token returned by the authenticate tool"),
	)
}

func marketplaceOption() mcp.ToolOption {
	return mcp.WithString("marketplace",
		mcp.Description("Marketplace code (UK, US, CA, DE, FR, IT, ES, JP, AU). Defaults to the configured marketplace."),
	)
}

func filteringOptions() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("filter_id",
			mcp.Description("Catalog filter id to apply to the result"),
		),
		mcp.WithString("custom_filter",
			mcp.Description("Ad-hoc filter expression to apply to the result"),
		),
		mcp.WithString("filter_chain",
			mcp.Description("Chain id, or comma-separated filter ids applied in order"),
		),
		mcp.WithObject("filter_params",
			mcp.Description("Values for the filter's declared parameters"),
		),
		mcp.WithBoolean("reduce_response",
			mcp.Description("Apply the endpoint's strongest reduction filter automatically"),
		),
	}
}

func withFiltering(opts ...mcp.ToolOption) []mcp.ToolOption {
	return append(opts, filteringOptions()...)
}

// RegisterTools wires every tool definition and handler onto the server.
func RegisterTools(s *server.MCPServer, c *Core) {
	s.AddTool(mcp.NewTool("authenticate",
		mcp.WithDescription("Validate the configured Amazon SP-API credentials and mint a session token. All other tools require the returned session_token."),
	), handleAuthenticate(c))

	s.AddTool(mcp.NewTool("get_orders",
		withFiltering(
			mcp.WithDescription("List orders in a creation window, following pagination. Defaults to the last 7 days."),
			sessionOption(),
			marketplaceOption(),
			mcp.WithString("created_after",
				mcp.Description("ISO-8601 lower bound on order creation time"),
			),
			mcp.WithString("created_before",
				mcp.Description("ISO-8601 upper bound on order creation time"),
			),
			mcp.WithArray("order_statuses",
				mcp.Description("Order statuses to include (Pending, Unshipped, Shipped, Canceled, ...)"),
				mcp.WithStringItems(),
			),
			mcp.WithNumber("max_results",
				mcp.Description("Cap on returned orders (1-5000)"),
			),
		)...,
	), handleGetOrders(c))

	s.AddTool(mcp.NewTool("get_order",
		mcp.WithDescription("Fetch one order by its Amazon order id."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("order_id",
			mcp.Required(),
			mcp.Description("Amazon order id, e.g. 026-1234567-0000001"),
		),
	), handleGetOrder(c))

	s.AddTool(mcp.NewTool("get_order_items",
		withFiltering(
			mcp.WithDescription("Fetch all line items for an order, following pagination."),
			sessionOption(),
			marketplaceOption(),
			mcp.WithString("order_id",
				mcp.Required(),
				mcp.Description("Amazon order id"),
			),
		)...,
	), handleGetOrderItems(c))

	s.AddTool(mcp.NewTool("get_inventory",
		withFiltering(
			mcp.WithDescription("Fetch in-stock inventory, sorted by descending quantity. FBA reads the inventory summaries endpoint; FBM is a best-effort view derived from listings fulfillment availability; ALL returns both."),
			sessionOption(),
			marketplaceOption(),
			mcp.WithString("fulfillment_type",
				mcp.Description("FBA (default), FBM, or ALL"),
				mcp.Enum("FBA", "FBM", "ALL"),
			),
			mcp.WithString("seller_id",
				mcp.Description("Selling partner id; required for FBM and ALL"),
			),
			mcp.WithArray("skus",
				mcp.Description("Restrict to these seller SKUs"),
				mcp.WithStringItems(),
			),
			mcp.WithBoolean("details",
				mcp.Description("Include detailed quantity breakdowns"),
			),
			mcp.WithNumber("max_results",
				mcp.Description("Cap on returned summaries (1-5000)"),
			),
		)...,
	), handleGetInventory(c))

	s.AddTool(mcp.NewTool("update_fbm_inventory",
		mcp.WithDescription("Set the seller-fulfilled quantity (and optional handling time) for one SKU."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("seller_id",
			mcp.Required(),
			mcp.Description("Selling partner id"),
		),
		mcp.WithString("sku",
			mcp.Required(),
			mcp.Description("Seller SKU"),
		),
		mcp.WithNumber("quantity",
			mcp.Required(),
			mcp.Description("New available quantity (>= 0)"),
		),
		mcp.WithNumber("handling_time",
			mcp.Description("Fulfillment latency in days (1-30)"),
		),
		mcp.WithString("restock_date",
			mcp.Description("ISO-8601 date the SKU restocks; must be in the future"),
		),
	), handleUpdateFbmInventory(c))

	s.AddTool(mcp.NewTool("bulk_update_fbm_inventory",
		mcp.WithDescription("Update seller-fulfilled quantities for many SKUs by submitting an inventory availability feed."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("seller_id",
			mcp.Required(),
			mcp.Description("Selling partner id"),
		),
		mcp.WithArray("updates",
			mcp.Required(),
			mcp.Description("Array of {sku, quantity, fulfillment_latency_days?} objects, at most 10000"),
		),
	), handleBulkUpdateFbmInventory(c))

	s.AddTool(mcp.NewTool("get_listing",
		mcp.WithDescription("Fetch a listings item: attributes, offers, and fulfillment availability by default."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("seller_id",
			mcp.Required(),
			mcp.Description("Selling partner id"),
		),
		mcp.WithString("sku",
			mcp.Required(),
			mcp.Description("Seller SKU"),
		),
		mcp.WithArray("included_data",
			mcp.Description("Narrow the returned data sets (attributes, offers, fulfillmentAvailability, issues, summaries)"),
			mcp.WithStringItems(),
		),
	), handleGetListing(c))

	s.AddTool(mcp.NewTool("update_listing",
		mcp.WithDescription("Partially update a listing: only the supplied fields are rewritten."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("seller_id",
			mcp.Required(),
			mcp.Description("Selling partner id"),
		),
		mcp.WithString("sku",
			mcp.Required(),
			mcp.Description("Seller SKU"),
		),
		mcp.WithString("title",
			mcp.Description("New item title"),
		),
		mcp.WithArray("bullet_points",
			mcp.Description("New bullet points (at most 5)"),
			mcp.WithStringItems(),
		),
		mcp.WithString("description",
			mcp.Description("New product description"),
		),
		mcp.WithArray("search_terms",
			mcp.Description("New generic keywords (at most 5)"),
			mcp.WithStringItems(),
		),
		mcp.WithString("brand",
			mcp.Description("New brand name"),
		),
		mcp.WithString("manufacturer",
			mcp.Description("New manufacturer name"),
		),
	), handleUpdateListing(c))

	s.AddTool(mcp.NewTool("update_listing_price",
		mcp.WithDescription("Replace the purchasable offer price for a SKU. The price is a decimal string such as \"69.98\"."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("seller_id",
			mcp.Required(),
			mcp.Description("Selling partner id"),
		),
		mcp.WithString("sku",
			mcp.Required(),
			mcp.Description("Seller SKU"),
		),
		mcp.WithString("new_price",
			mcp.Required(),
			mcp.Description("New price as a decimal string, tax inclusive"),
		),
		mcp.WithString("currency",
			mcp.Description("ISO 4217 currency code; defaults to the marketplace currency"),
		),
	), handleUpdateListingPrice(c))

	s.AddTool(mcp.NewTool("submit_feed",
		mcp.WithDescription("Submit a feed: create a feed document, upload the content, create the feed. Returns the feed id for polling."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("feed_type",
			mcp.Required(),
			mcp.Description("Feed type, e.g. POST_INVENTORY_AVAILABILITY_DATA"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Raw feed content"),
		),
		mcp.WithString("format",
			mcp.Description("Content format: XML (default), TEXT, CSV, or JSON"),
			mcp.Enum("XML", "TEXT", "CSV", "JSON"),
		),
	), handleSubmitFeed(c))

	s.AddTool(mcp.NewTool("get_feeds",
		mcp.WithDescription("Fetch one feed's processing status by id, or list recent feeds."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("feed_id",
			mcp.Description("Feed id; omit to list recent feeds"),
		),
		mcp.WithArray("feed_types",
			mcp.Description("Feed types to include when listing"),
			mcp.WithStringItems(),
		),
		mcp.WithArray("processing_statuses",
			mcp.Description("Processing statuses to include when listing (IN_QUEUE, IN_PROGRESS, DONE, CANCELLED, FATAL)"),
			mcp.WithStringItems(),
		),
	), handleGetFeeds(c))

	s.AddTool(mcp.NewTool("request_report",
		mcp.WithDescription("Schedule a report and return its id for polling."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("report_type",
			mcp.Required(),
			mcp.Description("Report type, e.g. GET_MERCHANT_LISTINGS_ALL_DATA"),
		),
		mcp.WithString("data_start_time",
			mcp.Description("ISO-8601 lower bound of the report window"),
		),
		mcp.WithString("data_end_time",
			mcp.Description("ISO-8601 upper bound of the report window"),
		),
	), handleRequestReport(c))

	s.AddTool(mcp.NewTool("get_report",
		mcp.WithDescription("Fetch a report's processing state, including the document id once done."),
		sessionOption(),
		marketplaceOption(),
		mcp.WithString("report_id",
			mcp.Required(),
			mcp.Description("Report id returned by request_report"),
		),
	), handleGetReport(c))

	s.AddTool(mcp.NewTool("list_filters",
		mcp.WithDescription("List the filter catalog grouped by kind, with chains and catalog stats."),
		sessionOption(),
		mcp.WithBoolean("export",
			mcp.Description("Return the full catalog as a portable JSON document instead of the grouped listing"),
		),
	), handleListFilters(c))

	s.AddTool(mcp.NewTool("search_filters",
		mcp.WithDescription("Search the filter catalog, or fetch one filter's full definition (with test results) by id."),
		sessionOption(),
		mcp.WithString("filter_id",
			mcp.Description("Return this filter's full definition and validation results"),
		),
		mcp.WithString("endpoint",
			mcp.Description("Match filters registered for this SP-API route"),
		),
		mcp.WithString("category",
			mcp.Description("Match filters in this category (orders, order_items, inventory, common)"),
		),
		mcp.WithString("kind",
			mcp.Description("Match filters of this kind (field, query, transform)"),
		),
		mcp.WithString("tag",
			mcp.Description("Match filters carrying this tag"),
		),
		mcp.WithString("term",
			mcp.Description("Substring match on name and description"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Cap on returned filters"),
		),
	), handleSearchFilters(c))
}
