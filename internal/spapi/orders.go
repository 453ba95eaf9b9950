package spapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	ordersPath     = "/orders/v0/orders"
	orderPageLimit = 100
)

// payloadOf unwraps the standard SP-API {"payload": ...} envelope.
func payloadOf(body []byte) (map[string]any, error) {
	var parsed struct {
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, NewError(KindAPIError, "malformed SP-API response", err)
	}
	if parsed.Payload == nil {
		return map[string]any{}, nil
	}
	return parsed.Payload, nil
}

// sliceOf reads a []any field out of a payload, tolerating absence.
func sliceOf(payload map[string]any, field string) []any {
	if v, ok := payload[field].([]any); ok {
		return v
	}
	return nil
}

func stringOf(payload map[string]any, field string) string {
	if v, ok := payload[field].(string); ok {
		return v
	}
	return ""
}

// ListOrdersInput selects orders by creation window and status.
type ListOrdersInput struct {
	Marketplaces  []string
	CreatedAfter  string
	CreatedBefore string
	Statuses      []string
	MaxResults    int
}

// ListOrders fetches orders across the NextToken sequence, newest window
// first as SP-API returns them.
func (s *Service) ListOrders(ctx context.Context, in ListOrdersInput) (*Result, error) {
	mkts, err := ValidateMarketplaces(in.Marketplaces)
	if err != nil {
		return nil, err
	}

	createdAfter := in.CreatedAfter
	if createdAfter == "" {
		createdAfter = time.Now().UTC().AddDate(0, 0, -7).Format(time.RFC3339)
	}
	after, err := ValidateISO8601("created_after", createdAfter)
	if err != nil {
		return nil, err
	}
	var before time.Time
	if in.CreatedBefore != "" {
		before, err = ValidateISO8601("created_before", in.CreatedBefore)
		if err != nil {
			return nil, err
		}
		if !before.After(after) {
			return nil, NewError(KindInvalidInput, "created_before must be after created_after", nil)
		}
	}
	if err := ValidateOrderStatuses(in.Statuses); err != nil {
		return nil, err
	}
	if in.MaxResults != 0 {
		if err := ValidateMaxResults(in.MaxResults); err != nil {
			return nil, err
		}
	}

	ids := make([]string, len(mkts))
	for i, m := range mkts {
		ids[i] = m.ID
	}

	var lastRequestID string
	items, pages, err := Paginate(ctx, in.MaxResults, func(ctx context.Context, token string) ([]any, string, error) {
		q := url.Values{}
		q.Set("MarketplaceIds", strings.Join(ids, ","))
		if token != "" {
			q.Set("NextToken", token)
		} else {
			q.Set("CreatedAfter", after.UTC().Format(time.RFC3339))
			if !before.IsZero() {
				q.Set("CreatedBefore", before.UTC().Format(time.RFC3339))
			}
			if len(in.Statuses) > 0 {
				q.Set("OrderStatuses", strings.Join(in.Statuses, ","))
			}
			q.Set("MaxResultsPerPage", strconv.Itoa(orderPageLimit))
		}

		resp, err := s.client.Do(ctx, Request{
			Method:      "GET",
			Route:       ordersPath,
			Path:        ordersPath,
			Query:       q,
			Marketplace: mkts[0],
		})
		if err != nil {
			return nil, "", err
		}
		lastRequestID = resp.RequestID
		payload, err := payloadOf(resp.Body)
		if err != nil {
			return nil, "", err
		}
		return sliceOf(payload, "Orders"), stringOf(payload, "NextToken"), nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Data: map[string]any{"orders": items, "count": len(items)},
		Meta: Metadata{
			"request_id":  lastRequestID,
			"marketplace": mkts[0].Code,
			"pages":       pages,
		},
	}, nil
}

// GetOrder fetches one order by its Amazon order id.
func (s *Service) GetOrder(ctx context.Context, orderID, marketplace string) (*Result, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, NewError(KindInvalidInput, "order_id must not be empty", nil)
	}
	mkt, err := s.resolveMarketplace(marketplace)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(ctx, Request{
		Method:      "GET",
		Route:       ordersPath + "/{orderId}",
		Path:        fmt.Sprintf("%s/%s", ordersPath, url.PathEscape(orderID)),
		Marketplace: mkt,
	})
	if err != nil {
		return nil, err
	}
	payload, err := payloadOf(resp.Body)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data: payload,
		Meta: Metadata{"request_id": resp.RequestID, "marketplace": mkt.Code},
	}, nil
}

// GetOrderItems fetches all line items for an order, following NextToken.
func (s *Service) GetOrderItems(ctx context.Context, orderID, marketplace string) (*Result, error) {
	if strings.TrimSpace(orderID) == "" {
		return nil, NewError(KindInvalidInput, "order_id must not be empty", nil)
	}
	mkt, err := s.resolveMarketplace(marketplace)
	if err != nil {
		return nil, err
	}

	route := ordersPath + "/{orderId}/orderItems"
	path := fmt.Sprintf("%s/%s/orderItems", ordersPath, url.PathEscape(orderID))

	var lastRequestID string
	items, pages, err := Paginate(ctx, 0, func(ctx context.Context, token string) ([]any, string, error) {
		q := url.Values{}
		if token != "" {
			q.Set("NextToken", token)
		}
		resp, err := s.client.Do(ctx, Request{
			Method:      "GET",
			Route:       route,
			Path:        path,
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
		return sliceOf(payload, "OrderItems"), stringOf(payload, "NextToken"), nil
	})
	if err != nil {
		return nil, err
	}

	return &Result{
		Data: map[string]any{
			"order_id":    orderID,
			"order_items": items,
			"count":       len(items),
		},
		Meta: Metadata{
			"request_id":  lastRequestID,
			"marketplace": mkt.Code,
			"pages":       pages,
		},
	}, nil
}
