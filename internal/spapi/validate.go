package spapi

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Constant sets used for input validation. These mirror the SP-API
// enumerations for the operations this server exposes.

var OrderStatuses = map[string]bool{
	"PendingAvailability": true,
	"Pending":             true,
	"Unshipped":           true,
	"PartiallyShipped":    true,
	"Shipped":             true,
	"InvoiceUnconfirmed":  true,
	"Canceled":            true,
	"Unfulfillable":       true,
}

var FeedTypes = map[string]bool{
	"POST_INVENTORY_AVAILABILITY_DATA": true,
	"POST_PRODUCT_PRICING_DATA":        true,
	"POST_PRODUCT_DATA":                true,
	"POST_FLAT_FILE_INVLOADER_DATA":    true,
	"JSON_LISTINGS_FEED":               true,
}

var ReportTypes = map[string]bool{
	"GET_FLAT_FILE_OPEN_LISTINGS_DATA":            true,
	"GET_MERCHANT_LISTINGS_ALL_DATA":              true,
	"GET_MERCHANT_LISTINGS_DATA":                  true,
	"GET_AFN_INVENTORY_DATA":                      true,
	"GET_FBA_MYI_UNSUPPRESSED_INVENTORY_DATA":     true,
	"GET_FLAT_FILE_ALL_ORDERS_DATA_BY_ORDER_DATE": true,
	"GET_ORDER_REPORT_DATA_INVOICING":             true,
}

const (
	MinHandlingTime     = 1
	MaxHandlingTime     = 30
	MaxBulkUpdateSize   = 10000
	MaxResultsCeiling   = 5000
	MaxAttributeEntries = 5
)

// skuForbidden are characters SP-API rejects in seller SKUs.
const skuForbidden = `<>:"|?*`

// ValidateMarketplaces resolves a list of marketplace codes, failing on the
// first unknown one. An empty list resolves to the default marketplace.
func ValidateMarketplaces(codes []string) ([]Marketplace, error) {
	if len(codes) == 0 {
		codes = []string{DefaultMarketplace}
	}
	out := make([]Marketplace, 0, len(codes))
	for _, c := range codes {
		mkt, err := LookupMarketplace(c)
		if err != nil {
			return nil, err
		}
		out = append(out, mkt)
	}
	return out, nil
}

// ValidateISO8601 parses a timestamp in the formats SP-API accepts.
func ValidateISO8601(field, value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, NewError(KindInvalidInput,
		fmt.Sprintf("%s must be an ISO-8601 timestamp, got %q", field, value), nil)
}

// ValidateSKU checks a seller SKU is non-empty and free of forbidden
// characters.
func ValidateSKU(sku string) error {
	if strings.TrimSpace(sku) == "" {
		return NewError(KindInvalidInput, "sku must not be empty", nil)
	}
	if i := strings.IndexAny(sku, skuForbidden); i >= 0 {
		return NewError(KindInvalidInput,
			fmt.Sprintf("sku contains forbidden character %q", sku[i]), nil)
	}
	return nil
}

// ValidateQuantity checks an inventory quantity is non-negative.
func ValidateQuantity(q int) error {
	if q < 0 {
		return NewError(KindInvalidInput, fmt.Sprintf("quantity must be >= 0, got %d", q), nil)
	}
	return nil
}

// ValidateHandlingTime checks a fulfillment latency in days.
func ValidateHandlingTime(days int) error {
	if days < MinHandlingTime || days > MaxHandlingTime {
		return NewError(KindInvalidInput,
			fmt.Sprintf("handling_time must be between %d and %d days, got %d", MinHandlingTime, MaxHandlingTime, days), nil)
	}
	return nil
}

// ValidateRestockDate checks a restock date is in the future.
func ValidateRestockDate(value string) (time.Time, error) {
	t, err := ValidateISO8601("restock_date", value)
	if err != nil {
		return time.Time{}, err
	}
	if !t.After(time.Now()) {
		return time.Time{}, NewError(KindInvalidInput, "restock_date must be in the future", nil)
	}
	return t, nil
}

// ValidateOrderStatuses checks each status against the SP-API enumeration.
func ValidateOrderStatuses(statuses []string) error {
	for _, s := range statuses {
		if !OrderStatuses[s] {
			return NewError(KindInvalidInput, fmt.Sprintf("unknown order status %q", s), nil)
		}
	}
	return nil
}

// ValidateMaxResults bounds a page-size request to 1..5000.
func ValidateMaxResults(n int) error {
	if n < 1 || n > MaxResultsCeiling {
		return NewError(KindInvalidInput,
			fmt.Sprintf("max_results must be between 1 and %d, got %d", MaxResultsCeiling, n), nil)
	}
	return nil
}

// ValidatePrice checks a positive decimal amount such as "19.99". Prices
// travel as strings end to end; scientific notation is rejected.
func ValidatePrice(amount string) error {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return NewError(KindInvalidInput, "price must not be empty", nil)
	}
	if strings.ContainsAny(amount, "eE+-") {
		return NewError(KindInvalidInput, fmt.Sprintf("price must be a plain decimal string, got %q", amount), nil)
	}
	n, err := strconv.ParseFloat(amount, 64)
	if err != nil {
		return NewError(KindInvalidInput, fmt.Sprintf("price must be a decimal string, got %q", amount), err)
	}
	if n <= 0 {
		return NewError(KindInvalidInput, fmt.Sprintf("price must be > 0, got %s", amount), nil)
	}
	return nil
}

// ValidateCurrency checks an ISO 4217 alphabetic code such as "GBP".
func ValidateCurrency(code string) error {
	if len(code) != 3 {
		return NewError(KindInvalidInput, fmt.Sprintf("currency must be a 3-letter ISO 4217 code, got %q", code), nil)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return NewError(KindInvalidInput, fmt.Sprintf("currency must be uppercase letters, got %q", code), nil)
		}
	}
	return nil
}

// ValidateAttributeEntries bounds a listing attribute list such as bullet
// points or search terms.
func ValidateAttributeEntries(field string, values []string) error {
	if len(values) > MaxAttributeEntries {
		return NewError(KindInvalidInput,
			fmt.Sprintf("%s allows at most %d entries, got %d", field, MaxAttributeEntries, len(values)), nil)
	}
	return nil
}
