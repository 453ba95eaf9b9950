package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/zigilabs/amazon-mcp/internal/cache"
)

const listingsBase = "/listings/2021-08-01/items"

// defaultIncludedData is requested when the caller does not narrow the view.
var defaultIncludedData = []string{"attributes", "offers", "fulfillmentAvailability"}

func listingsPath(sellerID, sku string) string {
	return fmt.Sprintf("%s/%s/%s", listingsBase, url.PathEscape(sellerID), url.PathEscape(sku))
}

const listingsRoute = listingsBase + "/{sellerId}/{sku}"

// GetListingInput selects one listing item.
type GetListingInput struct {
	SellerID     string
	SKU          string
	Marketplace  string
	IncludedData []string
	IssueLocale  string
}

// GetListing fetches a listings item. Results are cached for the listings TTL.
func (s *Service) GetListing(ctx context.Context, in GetListingInput) (*Result, error) {
	if strings.TrimSpace(in.SellerID) == "" {
		return nil, NewError(KindInvalidInput, "seller_id must not be empty", nil)
	}
	if err := ValidateSKU(in.SKU); err != nil {
		return nil, err
	}
	mkt, err := s.resolveMarketplace(in.Marketplace)
	if err != nil {
		return nil, err
	}

	included := in.IncludedData
	if len(included) == 0 {
		included = defaultIncludedData
	}
	locale := in.IssueLocale
	if locale == "" {
		locale = "en_" + mkt.CountryCode
	}

	q := url.Values{}
	q.Set("marketplaceIds", mkt.ID)
	q.Set("includedData", strings.Join(included, ","))
	q.Set("issueLocale", locale)

	path := listingsPath(in.SellerID, in.SKU)
	cacheKey := cache.MakeKey(cache.CategoryListings, mkt.Code, path+"?"+q.Encode())
	if s.cache != nil {
		if v, ok := s.cache.Get(cacheKey); ok {
			r := v.(*Result)
			return &Result{Data: r.Data, Meta: mergeMeta(r.Meta, Metadata{"cache_hit": true})}, nil
		}
	}

	resp, err := s.client.Do(ctx, Request{
		Method:      "GET",
		Route:       listingsRoute,
		Path:        path,
		Query:       q,
		Marketplace: mkt,
	})
	if err != nil {
		return nil, err
	}

	var item map[string]any
	if err := json.Unmarshal(resp.Body, &item); err != nil {
		return nil, NewError(KindAPIError, "malformed listings response", err)
	}

	result := &Result{
		Data: item,
		Meta: Metadata{"request_id": resp.RequestID, "marketplace": mkt.Code},
	}
	if s.cache != nil {
		s.cache.Set(cacheKey, cache.CategoryListings, result)
	}
	return result, nil
}

// ListingPatch is one JSON-patch operation on a listings item.
type ListingPatch struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value,omitempty"`
}

// PatchListing submits JSON-patch operations against a listings item and
// invalidates cached reads for the SKU.
func (s *Service) PatchListing(ctx context.Context, sellerID, sku, marketplace, productType string, patches []ListingPatch) (*Result, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, NewError(KindInvalidInput, "seller_id must not be empty", nil)
	}
	if err := ValidateSKU(sku); err != nil {
		return nil, err
	}
	if len(patches) == 0 {
		return nil, NewError(KindInvalidInput, "patches must not be empty", nil)
	}
	mkt, err := s.resolveMarketplace(marketplace)
	if err != nil {
		return nil, err
	}
	if productType == "" {
		productType = "PRODUCT"
	}

	body, err := json.Marshal(map[string]any{
		"productType": productType,
		"patches":     patches,
	})
	if err != nil {
		return nil, NewError(KindInternalError, "encoding patch body", err)
	}

	q := url.Values{}
	q.Set("marketplaceIds", mkt.ID)

	resp, err := s.client.Do(ctx, Request{
		Method:      "PATCH",
		Route:       listingsRoute,
		Path:        listingsPath(sellerID, sku),
		Query:       q,
		Body:        body,
		Marketplace: mkt,
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.InvalidatePrefix(url.PathEscape(sku))
	}

	var parsed map[string]any
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		parsed = map[string]any{"status": "ACCEPTED"}
	}
	return &Result{
		Data: parsed,
		Meta: Metadata{"request_id": resp.RequestID, "marketplace": mkt.Code},
	}, nil
}

// listingUpdateAdvisory notes which attributes a mutation touched and how
// long SP-API typically takes to surface the change. It is an observation,
// not a guarantee.
func listingUpdateAdvisory(fields []string) map[string]any {
	return map[string]any{
		"fields_changed":    fields,
		"propagation_delay": "changes typically appear on the listing within 5-15 minutes",
	}
}

// UpdatePrice replaces the purchasable offer price for a SKU. The amount
// travels as a decimal string end to end; currency defaults to the
// marketplace's.
func (s *Service) UpdatePrice(ctx context.Context, sellerID, sku, marketplace, amount, currency string) (*Result, error) {
	if err := ValidatePrice(amount); err != nil {
		return nil, err
	}
	mkt, err := s.resolveMarketplace(marketplace)
	if err != nil {
		return nil, err
	}
	if currency == "" {
		currency = mkt.Currency
	}
	if err := ValidateCurrency(currency); err != nil {
		return nil, err
	}

	patch := ListingPatch{
		Op:   "replace",
		Path: "/attributes/purchasable_offer",
		Value: []any{map[string]any{
			"marketplace_id": mkt.ID,
			"currency":       currency,
			"our_price": []any{map[string]any{
				"schedule": []any{map[string]any{
					"value_with_tax": amount,
				}},
			}},
		}},
	}
	res, err := s.PatchListing(ctx, sellerID, sku, mkt.Code, "PRODUCT", []ListingPatch{patch})
	if err != nil {
		return nil, err
	}
	res.Meta["sku"] = sku
	res.Meta["price"] = amount
	res.Meta["currency"] = currency
	res.Meta["listing_update"] = listingUpdateAdvisory([]string{"purchasable_offer"})
	return res, nil
}

// listing attribute paths addressed by UpdateListing.
const (
	attrItemName           = "/attributes/item_name"
	attrBulletPoint        = "/attributes/bullet_point"
	attrProductDescription = "/attributes/product_description"
	attrGenericKeyword     = "/attributes/generic_keyword"
	attrBrand              = "/attributes/brand"
	attrManufacturer       = "/attributes/manufacturer"
)

// UpdateListingInput carries a partial listing rewrite. Only the supplied
// fields produce patch operations.
type UpdateListingInput struct {
	SellerID    string
	SKU         string
	Marketplace string

	Title        string
	BulletPoints []string
	Description  string
	SearchTerms  []string
	Brand        string
	Manufacturer string
}

// UpdateListing rewrites the supplied listing attributes in one patch.
// Bullet points and search terms are capped at five entries each.
func (s *Service) UpdateListing(ctx context.Context, in UpdateListingInput) (*Result, error) {
	if err := ValidateAttributeEntries("bullet_points", in.BulletPoints); err != nil {
		return nil, err
	}
	if err := ValidateAttributeEntries("search_terms", in.SearchTerms); err != nil {
		return nil, err
	}

	single := func(v string) []any {
		return []any{map[string]any{"value": v}}
	}
	multi := func(vs []string) []any {
		out := make([]any, len(vs))
		for i, v := range vs {
			out[i] = map[string]any{"value": v}
		}
		return out
	}

	var patches []ListingPatch
	var fields []string
	add := func(field, path string, value []any) {
		patches = append(patches, ListingPatch{Op: "replace", Path: path, Value: value})
		fields = append(fields, field)
	}
	if in.Title != "" {
		add("title", attrItemName, single(in.Title))
	}
	if len(in.BulletPoints) > 0 {
		add("bullet_points", attrBulletPoint, multi(in.BulletPoints))
	}
	if in.Description != "" {
		add("description", attrProductDescription, single(in.Description))
	}
	if len(in.SearchTerms) > 0 {
		add("search_terms", attrGenericKeyword, multi(in.SearchTerms))
	}
	if in.Brand != "" {
		add("brand", attrBrand, single(in.Brand))
	}
	if in.Manufacturer != "" {
		add("manufacturer", attrManufacturer, single(in.Manufacturer))
	}
	if len(patches) == 0 {
		return nil, NewError(KindInvalidInput, "no listing fields supplied; provide at least one of title, bullet_points, description, search_terms, brand, manufacturer", nil)
	}

	res, err := s.PatchListing(ctx, in.SellerID, in.SKU, in.Marketplace, "PRODUCT", patches)
	if err != nil {
		return nil, err
	}
	res.Meta["sku"] = in.SKU
	res.Meta["listing_update"] = listingUpdateAdvisory(fields)
	return res, nil
}

// UpdateFbmInventory replaces the seller-fulfilled quantity (plus optional
// handling time and restock date) for a SKU via a fulfillment availability
// patch.
func (s *Service) UpdateFbmInventory(ctx context.Context, sellerID, sku, marketplace string, quantity, handlingTimeDays int, restockDate string) (*Result, error) {
	if err := ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	avail := map[string]any{
		"fulfillment_channel_code": "DEFAULT",
		"quantity":                 quantity,
	}
	if handlingTimeDays != 0 {
		if err := ValidateHandlingTime(handlingTimeDays); err != nil {
			return nil, err
		}
		avail["lead_time_to_ship_max_days"] = handlingTimeDays
	}
	if restockDate != "" {
		t, err := ValidateRestockDate(restockDate)
		if err != nil {
			return nil, err
		}
		avail["restock_date"] = t.UTC().Format(time.RFC3339)
	}

	patch := ListingPatch{
		Op:    "replace",
		Path:  "/attributes/fulfillment_availability",
		Value: []any{avail},
	}
	res, err := s.PatchListing(ctx, sellerID, sku, marketplace, "PRODUCT", []ListingPatch{patch})
	if err != nil {
		return nil, err
	}
	res.Meta["sku"] = sku
	res.Meta["quantity"] = quantity
	res.Meta["listing_update"] = listingUpdateAdvisory([]string{"fulfillment_availability"})
	return res, nil
}
