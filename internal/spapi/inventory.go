package spapi

import (
	"context"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/zigilabs/amazon-mcp/internal/cache"
)

const inventoryPath = "/fba/inventory/v1/summaries"

// GetInventoryInput selects FBA inventory summaries.
type GetInventoryInput struct {
	Marketplace string
	SKUs        []string
	Details     bool
	MaxResults  int
}

// GetInventory fetches FBA inventory summaries with marketplace granularity,
// following the pagination token. Zero-quantity summaries are dropped and
// the rest sorted by descending totalQuantity; results are cached for the
// inventory TTL.
func (s *Service) GetInventory(ctx context.Context, in GetInventoryInput) (*Result, error) {
	mkt, err := s.resolveMarketplace(in.Marketplace)
	if err != nil {
		return nil, err
	}
	if in.MaxResults != 0 {
		if err := ValidateMaxResults(in.MaxResults); err != nil {
			return nil, err
		}
	}
	for _, sku := range in.SKUs {
		if err := ValidateSKU(sku); err != nil {
			return nil, err
		}
	}

	baseQuery := url.Values{}
	baseQuery.Set("granularityType", "Marketplace")
	baseQuery.Set("granularityId", mkt.ID)
	baseQuery.Set("marketplaceIds", mkt.ID)
	if in.Details {
		baseQuery.Set("details", "true")
	}
	if len(in.SKUs) > 0 {
		baseQuery.Set("sellerSkus", strings.Join(in.SKUs, ","))
	}

	cacheKey := cache.MakeKey(cache.CategoryInventory, mkt.Code,
		inventoryPath+"?"+baseQuery.Encode()+"&max="+strconv.Itoa(in.MaxResults))
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey); ok {
			r := v.(*Result)
			return &Result{Data: r.Data, Meta: mergeMeta(r.Meta, Metadata{"cache_hit": true})}, nil
		}
	}

	var lastRequestID string
	items, pages, err := Paginate(ctx, in.MaxResults, func(ctx context.Context, token string) ([]any, string, error) {
		q := url.Values{}
		for k, vs := range baseQuery {
			q[k] = vs
		}
		if token != "" {
			q.Set("nextToken", token)
		}
		resp, err := s.client.Do(ctx, Request{
			Method:      "GET",
			Route:       inventoryPath,
			Path:        inventoryPath,
			Query:       q,
			Marketplace: mkt,
		})
		if err != nil {
			return nil, "", err
		}
		lastRequestID = resp.RequestID
		payload, err := payloadOf(resp.Body)
		if err != nil {
			return nil, "", err
		}
		next := ""
		if p, ok := payload["pagination"].(map[string]any); ok {
			next = stringOf(p, "nextToken")
		}
		return sliceOf(payload, "inventorySummaries"), next, nil
	})
	if err != nil {
		return nil, err
	}

	items = filterAvailable(items)
	sortByTotalQuantity(items)

	result := &Result{
		Data: map[string]any{"inventory": items, "count": len(items)},
		Meta: Metadata{
			"request_id":  lastRequestID,
			"marketplace": mkt.Code,
			"pages":       pages,
		},
	}
	if s.cache != nil {
		s.cache.Set(cacheKey, cache.CategoryInventory, result)
	}
	return result, nil
}

// filterAvailable keeps summaries whose totalQuantity is positive.
func filterAvailable(items []any) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		if q, ok := m["totalQuantity"].(float64); ok && q > 0 {
			out = append(out, it)
		}
	}
	return out
}

// sortByTotalQuantity orders summaries by descending totalQuantity, keeping
// server order among equals.
func sortByTotalQuantity(items []any) {
	sort.SliceStable(items, func(a, b int) bool {
		return totalQuantityOf(items[a]) > totalQuantityOf(items[b])
	})
}

func totalQuantityOf(item any) float64 {
	if m, ok := item.(map[string]any); ok {
		if q, ok := m["totalQuantity"].(float64); ok {
			return q
		}
	}
	return 0
}

// fbmWarning explains why the seller-fulfilled view is best effort. SP-API
// has no FBM inventory endpoint, so quantities are read from each listing's
// fulfillment availability.
const fbmWarning = "FBM inventory is derived from listings fulfillment availability; SP-API has no dedicated seller-fulfilled inventory endpoint"

// GetFbmInventory builds a best-effort seller-fulfilled inventory view by
// reading fulfillment availability from each listing. Always succeeds with a
// warning in metadata; SKUs that fail to resolve are reported, not fatal.
func (s *Service) GetFbmInventory(ctx context.Context, sellerID, marketplace string, skus []string) (*Result, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, NewError(KindInvalidInput, "seller_id must not be empty", nil)
	}
	mkt, err := s.resolveMarketplace(marketplace)
	if err != nil {
		return nil, err
	}

	rows := make([]any, 0, len(skus))
	var failed []string
	for _, sku := range skus {
		if err := ValidateSKU(sku); err != nil {
			return nil, err
		}
		item, err := s.GetListing(ctx, GetListingInput{
			SellerID:     sellerID,
			SKU:          sku,
			Marketplace:  mkt.Code,
			IncludedData: []string{"fulfillmentAvailability"},
		})
		if err != nil {
			failed = append(failed, sku)
			continue
		}
		qty := 0
		if m, ok := item.Data.(map[string]any); ok {
			if fa, ok := m["fulfillmentAvailability"].([]any); ok && len(fa) > 0 {
				if first, ok := fa[0].(map[string]any); ok {
					if q, ok := first["quantity"].(float64); ok {
						qty = int(q)
					}
				}
			}
		}
		rows = append(rows, map[string]any{"sku": sku, "quantity": qty})
	}

	meta := Metadata{
		"marketplace": mkt.Code,
		"warning":     fbmWarning,
	}
	if len(failed) > 0 {
		meta["unresolved_skus"] = failed
	}
	return &Result{
		Data: map[string]any{"inventory": rows, "count": len(rows)},
		Meta: meta,
	}, nil
}

func mergeMeta(base, extra Metadata) Metadata {
	out := make(Metadata, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
