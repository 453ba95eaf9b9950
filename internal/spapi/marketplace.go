// Package spapi implements the Amazon Selling Partner API client:
// credentials, request signing, rate limiting, dispatch with retry, and the
// per-domain operation adapters.
package spapi

import (
	"fmt"
	"sort"
	"strings"
)

// Marketplace describes one SP-API marketplace and the regional endpoint
// that serves it.
type Marketplace struct {
	Code        string `json:"code"`
	ID          string `json:"marketplace_id"`
	CountryCode string `json:"country_code"`
	Currency    string `json:"currency"`
	Domain      string `json:"domain"`
	Region      string `json:"region"`
	Endpoint    string `json:"endpoint"`
}

// DefaultMarketplace is used when a request does not name one.
const DefaultMarketplace = "UK"

const (
	endpointEU = "https://sellingpartnerapi-eu.amazon.com"
	endpointNA = "https://sellingpartnerapi-na.amazon.com"
	endpointFE = "https://sellingpartnerapi-fe.amazon.com"
)

var marketplaces = map[string]Marketplace{
	"UK": {Code: "UK", ID: "A1F83G8C2ARO7P", CountryCode: "GB", Currency: "GBP", Domain: "amazon.co.uk", Region: "eu-west-1", Endpoint: endpointEU},
	"DE": {Code: "DE", ID: "A1PA6795UKMFR9", CountryCode: "DE", Currency: "EUR", Domain: "amazon.de", Region: "eu-west-1", Endpoint: endpointEU},
	"FR": {Code: "FR", ID: "A13V1IB3VIYZZH", CountryCode: "FR", Currency: "EUR", Domain: "amazon.fr", Region: "eu-west-1", Endpoint: endpointEU},
	"IT": {Code: "IT", ID: "APJ6JRA9NG5V4", CountryCode: "IT", Currency: "EUR", Domain: "amazon.it", Region: "eu-west-1", Endpoint: endpointEU},
	"ES": {Code: "ES", ID: "A1RKKUPIHCS9HS", CountryCode: "ES", Currency: "EUR", Domain: "amazon.es", Region: "eu-west-1", Endpoint: endpointEU},
	"US": {Code: "US", ID: "ATVPDKIKX0DER", CountryCode: "US", Currency: "USD", Domain: "amazon.com", Region: "us-east-1", Endpoint: endpointNA},
	"CA": {Code: "CA", ID: "A2EUQ1WTGCTBG2", CountryCode: "CA", Currency: "CAD", Domain: "amazon.ca", Region: "us-east-1", Endpoint: endpointNA},
	"JP": {Code: "JP", ID: "A1VC38T7YXB528", CountryCode: "JP", Currency: "JPY", Domain: "amazon.co.jp", Region: "us-west-2", Endpoint: endpointFE},
	"AU": {Code: "AU", ID: "A39IBJ37TRP1C6", CountryCode: "AU", Currency: "AUD", Domain: "amazon.com.au", Region: "us-west-2", Endpoint: endpointFE},
}

// LookupMarketplace resolves a marketplace code (case-insensitive). An empty
// code resolves to the default marketplace.
func LookupMarketplace(code string) (Marketplace, error) {
	if code == "" {
		code = DefaultMarketplace
	}
	mkt, ok := marketplaces[strings.ToUpper(code)]
	if !ok {
		return Marketplace{}, NewError(KindInvalidInput,
			fmt.Sprintf("unknown marketplace %q, valid codes: %s", code, strings.Join(MarketplaceCodes(), ", ")), nil)
	}
	return mkt, nil
}

// MarketplaceCodes returns all supported marketplace codes, sorted.
func MarketplaceCodes() []string {
	codes := make([]string, 0, len(marketplaces))
	for c := range marketplaces {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}

// Marketplaces returns the full marketplace table keyed by code.
func Marketplaces() map[string]Marketplace {
	out := make(map[string]Marketplace, len(marketplaces))
	for k, v := range marketplaces {
		out[k] = v
	}
	return out
}
