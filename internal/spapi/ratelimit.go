package spapi

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Admission modes for the rate limiter.
const (
	AdmissionWait     = "wait"
	AdmissionFailFast = "fail_fast"
)

// limitSpec is a refill rate (tokens per second) and a bucket capacity.
type limitSpec struct {
	Rate  float64
	Burst int
}

// defaultLimits is the built-in per-route table. Keys are route templates,
// matched longest-prefix so "/orders/v0/orders/{orderId}/orderItems" wins
// over "/orders/v0/orders".
var defaultLimits = map[string]limitSpec{
	"/orders/v0/orders":                          {0.0167, 20},
	"/orders/v0/orders/{orderId}":                {0.0167, 20},
	"/orders/v0/orders/{orderId}/orderItems":     {0.5, 30},
	"/fba/inventory/v1/summaries":                {5, 10},
	"/listings/2021-08-01/items":                 {5, 10},
	"/feeds/2021-06-30/feeds":                    {15, 30},
	"/feeds/2021-06-30/documents":                {15, 30},
	"/reports/2021-06-30/reports":                {15, 30},
	"/products/pricing/v0/price":                 {10, 20},
	"/products/pricing/v0/competitivePrice":      {10, 20},
}

var defaultLimit = limitSpec{5, 10}

// RateLimiter admits requests against per-route token buckets. Buckets are
// created lazily; all requests sharing a route template share one bucket.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	table   map[string]limitSpec
	mode    string
}

// NewRateLimiter builds a limiter with the built-in table, the given
// overrides applied on top, and the given admission mode.
func NewRateLimiter(mode string, overrides map[string]string) (*RateLimiter, error) {
	if mode == "" {
		mode = AdmissionWait
	}
	if mode != AdmissionWait && mode != AdmissionFailFast {
		return nil, NewError(KindInvalidInput, fmt.Sprintf("unknown admission mode %q", mode), nil)
	}
	table := make(map[string]limitSpec, len(defaultLimits))
	for k, v := range defaultLimits {
		table[k] = v
	}
	for route, spec := range overrides {
		parsed, err := parseLimitSpec(spec)
		if err != nil {
			return nil, NewError(KindInvalidInput,
				fmt.Sprintf("bad rate limit override for %s: %v", route, err), nil)
		}
		table[route] = parsed
	}
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		table:   table,
		mode:    mode,
	}, nil
}

// parseLimitSpec parses a "rate,burst" override value.
func parseLimitSpec(s string) (limitSpec, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return limitSpec{}, fmt.Errorf("want \"rate,burst\", got %q", s)
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil || r <= 0 {
		return limitSpec{}, fmt.Errorf("bad rate %q", parts[0])
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || b < 1 {
		return limitSpec{}, fmt.Errorf("bad burst %q", parts[1])
	}
	return limitSpec{Rate: r, Burst: b}, nil
}

// lookup resolves the limit spec for a route template: exact match first,
// then longest matching prefix, then the default.
func (l *RateLimiter) lookup(route string) limitSpec {
	if spec, ok := l.table[route]; ok {
		return spec
	}
	best := ""
	for k := range l.table {
		if strings.HasPrefix(route, k) && len(k) > len(best) {
			best = k
		}
	}
	if best != "" {
		return l.table[best]
	}
	return defaultLimit
}

func (l *RateLimiter) bucket(route string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok := l.buckets[route]; ok {
		return b
	}
	spec := l.lookup(route)
	b := rate.NewLimiter(rate.Limit(spec.Rate), spec.Burst)
	l.buckets[route] = b
	return b
}

// Admit gates one request on the route's bucket. In wait mode it blocks
// until a token is available or ctx expires. In fail_fast mode it returns a
// rate_limit_exceeded error carrying the refill delay when no token is
// available now.
func (l *RateLimiter) Admit(ctx context.Context, route string) error {
	b := l.bucket(route)
	if l.mode == AdmissionFailFast {
		res := b.Reserve()
		if !res.OK() {
			return &Error{Kind: KindRateLimitExceeded, Message: "rate limit exceeded for " + route}
		}
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			return &Error{
				Kind:       KindRateLimitExceeded,
				Message:    "rate limit exceeded for " + route,
				RetryAfter: delay,
			}
		}
		return nil
	}
	if err := b.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return NewError(KindTimeout, "cancelled while waiting for rate limit on "+route, ctx.Err())
		}
		return NewError(KindInternalError, "rate limit wait failed for "+route, err)
	}
	return nil
}
