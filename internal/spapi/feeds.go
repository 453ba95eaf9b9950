package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const (
	feedsPath         = "/feeds/2021-06-30/feeds"
	feedDocumentsPath = "/feeds/2021-06-30/documents"

	inventoryFeedType = "POST_INVENTORY_AVAILABILITY_DATA"
)

// feedContentTypes maps a feed format to its upload content type.
var feedContentTypes = map[string]string{
	"XML":  "text/xml; charset=UTF-8",
	"TEXT": "text/tab-separated-values; charset=UTF-8",
	"CSV":  "text/csv; charset=UTF-8",
	"JSON": "application/json; charset=UTF-8",
}

// Upload PUTs feed content to a presigned document URL. The URL embeds its
// own authorization, so the request is not signed and carries no SP-API
// headers beyond the content type.
func (c *Client) Upload(ctx context.Context, presignedURL string, content []byte, contentType string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presignedURL, bytes.NewReader(content))
	if err != nil {
		return NewError(KindInternalError, "building feed upload request", err)
	}
	req.Header.Set("content-type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return NewError(KindNetworkError, "feed upload failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &Error{
			Kind:    KindAPIError,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("feed upload returned %d", resp.StatusCode),
			Details: string(body),
		}
	}
	return nil
}

// SubmitFeedInput carries one feed submission.
type SubmitFeedInput struct {
	FeedType    string
	Marketplace string
	Content     []byte
	// Format selects the upload content type: XML, TEXT, CSV, or JSON.
	Format string
}

// SubmitFeed runs the three-step feed pipeline: create a feed document,
// upload the content to the presigned URL, then create the feed referencing
// the document.
func (s *Service) SubmitFeed(ctx context.Context, in SubmitFeedInput) (*Result, error) {
	if !FeedTypes[in.FeedType] {
		return nil, NewError(KindInvalidInput, fmt.Sprintf("unknown feed type %q", in.FeedType), nil)
	}
	if len(in.Content) == 0 {
		return nil, NewError(KindInvalidInput, "feed content must not be empty", nil)
	}
	contentType, ok := feedContentTypes[strings.ToUpper(in.Format)]
	if !ok {
		return nil, NewError(KindInvalidInput, fmt.Sprintf("unknown feed format %q (want XML, TEXT, CSV, or JSON)", in.Format), nil)
	}
	mkt, err := s.resolveMarketplace(in.Marketplace)
	if err != nil {
		return nil, err
	}

	// Step 1: create the feed document.
	docBody, _ := json.Marshal(map[string]string{"contentType": contentType})
	docResp, err := s.client.Do(ctx, Request{
		Method:      "POST",
		Route:       feedDocumentsPath,
		Path:        feedDocumentsPath,
		Body:        docBody,
		Marketplace: mkt,
	})
	if err != nil {
		return nil, err
	}
	var doc struct {
		FeedDocumentID string `json:"feedDocumentId"`
		URL            string `json:"url"`
	}
	if err := json.Unmarshal(docResp.Body, &doc); err != nil || doc.FeedDocumentID == "" || doc.URL == "" {
		return nil, NewError(KindAPIError, "malformed feed document response", err)
	}

	// Step 2: upload the content.
	if err := s.client.Upload(ctx, doc.URL, in.Content, contentType); err != nil {
		return nil, err
	}

	// Step 3: create the feed.
	feedBody, _ := json.Marshal(map[string]any{
		"feedType":            in.FeedType,
		"marketplaceIds":      []string{mkt.ID},
		"inputFeedDocumentId": doc.FeedDocumentID,
	})
	feedResp, err := s.client.Do(ctx, Request{
		Method:      "POST",
		Route:       feedsPath,
		Path:        feedsPath,
		Body:        feedBody,
		Marketplace: mkt,
	})
	if err != nil {
		return nil, err
	}
	var created struct {
		FeedID string `json:"feedId"`
	}
	if err := json.Unmarshal(feedResp.Body, &created); err != nil || created.FeedID == "" {
		return nil, NewError(KindAPIError, "malformed create feed response", err)
	}

	return &Result{
		Data: map[string]any{
			"feed_id":          created.FeedID,
			"feed_document_id": doc.FeedDocumentID,
			"feed_type":        in.FeedType,
		},
		Meta: Metadata{"request_id": feedResp.RequestID, "marketplace": mkt.Code},
	}, nil
}

// GetFeed fetches the processing status of one feed.
func (s *Service) GetFeed(ctx context.Context, feedID, marketplace string) (*Result, error) {
	if strings.TrimSpace(feedID) == "" {
		return nil, NewError(KindInvalidInput, "feed_id must not be empty", nil)
	}
	mkt, err := s.resolveMarketplace(marketplace)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(ctx, Request{
		Method:      "GET",
		Route:       feedsPath + "/{feedId}",
		Path:        fmt.Sprintf("%s/%s", feedsPath, url.PathEscape(feedID)),
		Marketplace: mkt,
	})
	if err != nil {
		return nil, err
	}
	var feed map[string]any
	if err := json.Unmarshal(resp.Body, &feed); err != nil {
		return nil, NewError(KindAPIError, "malformed feed response", err)
	}
	return &Result{
		Data: feed,
		Meta: Metadata{"request_id": resp.RequestID, "marketplace": mkt.Code},
	}, nil
}

// ListFeeds fetches recent feeds, optionally narrowed by type and
// processing status.
func (s *Service) ListFeeds(ctx context.Context, marketplace string, feedTypes, processingStatuses []string) (*Result, error) {
	mkt, err := s.resolveMarketplace(marketplace)
	if err != nil {
		return nil, err
	}
	for _, ft := range feedTypes {
		if !FeedTypes[ft] {
			return nil, NewError(KindInvalidInput, fmt.Sprintf("unknown feed type %q", ft), nil)
		}
	}

	q := url.Values{}
	q.Set("marketplaceIds", mkt.ID)
	if len(feedTypes) > 0 {
		q.Set("feedTypes", strings.Join(feedTypes, ","))
	}
	if len(processingStatuses) > 0 {
		q.Set("processingStatuses", strings.Join(processingStatuses, ","))
	}

	resp, err := s.client.Do(ctx, Request{
		Method:      "GET",
		Route:       feedsPath,
		Path:        feedsPath,
		Query:       q,
		Marketplace: mkt,
	})
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Feeds     []any  `json:"feeds"`
		NextToken string `json:"nextToken"`
	}
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, NewError(KindAPIError, "malformed list feeds response", err)
	}
	return &Result{
		Data: map[string]any{"feeds": parsed.Feeds, "count": len(parsed.Feeds)},
		Meta: Metadata{"request_id": resp.RequestID, "marketplace": mkt.Code},
	}, nil
}

// FbmUpdate is one SKU quantity assignment in a bulk inventory feed.
type FbmUpdate struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	// FulfillmentLatencyDays is optional; zero omits the element.
	FulfillmentLatencyDays int `json:"fulfillment_latency_days,omitempty"`
}

type feedEnvelope struct {
	XMLName       xml.Name    `xml:"AmazonEnvelope"`
	NoNamespace   string      `xml:"xsi:noNamespaceSchemaLocation,attr"`
	XSI           string      `xml:"xmlns:xsi,attr"`
	Header        feedHeader  `xml:"Header"`
	MessageType   string      `xml:"MessageType"`
	Messages      []feedMsg   `xml:"Message"`
}

type feedHeader struct {
	DocumentVersion    string `xml:"DocumentVersion"`
	MerchantIdentifier string `xml:"MerchantIdentifier"`
}

type feedMsg struct {
	MessageID     int           `xml:"MessageID"`
	OperationType string        `xml:"OperationType"`
	Inventory     feedInventory `xml:"Inventory"`
}

type feedInventory struct {
	SKU                string `xml:"SKU"`
	Quantity           int    `xml:"Quantity"`
	FulfillmentLatency int    `xml:"FulfillmentLatency,omitempty"`
}

// BuildInventoryFeedXML renders the envelope for an inventory availability
// feed.
func BuildInventoryFeedXML(sellerID string, updates []FbmUpdate) ([]byte, error) {
	env := feedEnvelope{
		NoNamespace: "amzn-envelope.xsd",
		XSI:         "http://www.w3.org/2001/XMLSchema-instance",
		Header: feedHeader{
			DocumentVersion:    "1.01",
			MerchantIdentifier: sellerID,
		},
		MessageType: "Inventory",
	}
	for i, u := range updates {
		env.Messages = append(env.Messages, feedMsg{
			MessageID:     i + 1,
			OperationType: "Update",
			Inventory: feedInventory{
				SKU:                u.SKU,
				Quantity:           u.Quantity,
				FulfillmentLatency: u.FulfillmentLatencyDays,
			},
		})
	}
	out, err := xml.MarshalIndent(env, "", "  ")
	if err != nil {
		return nil, NewError(KindInternalError, "encoding inventory feed", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// BulkUpdateFbmInventory submits quantity updates for many SKUs as one
// inventory availability feed.
func (s *Service) BulkUpdateFbmInventory(ctx context.Context, sellerID, marketplace string, updates []FbmUpdate) (*Result, error) {
	if strings.TrimSpace(sellerID) == "" {
		return nil, NewError(KindInvalidInput, "seller_id must not be empty", nil)
	}
	if len(updates) == 0 {
		return nil, NewError(KindInvalidInput, "updates must not be empty", nil)
	}
	if len(updates) > MaxBulkUpdateSize {
		return nil, NewError(KindInvalidInput,
			fmt.Sprintf("at most %d updates per feed, got %d", MaxBulkUpdateSize, len(updates)), nil)
	}
	for _, u := range updates {
		if err := ValidateSKU(u.SKU); err != nil {
			return nil, err
		}
		if err := ValidateQuantity(u.Quantity); err != nil {
			return nil, err
		}
		if u.FulfillmentLatencyDays != 0 {
			if err := ValidateHandlingTime(u.FulfillmentLatencyDays); err != nil {
				return nil, err
			}
		}
	}

	content, err := BuildInventoryFeedXML(sellerID, updates)
	if err != nil {
		return nil, err
	}
	res, err := s.SubmitFeed(ctx, SubmitFeedInput{
		FeedType:    inventoryFeedType,
		Marketplace: marketplace,
		Content:     content,
		Format:      "XML",
	})
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.InvalidatePrefix("inventory:")
	}
	res.Meta["update_count"] = len(updates)
	return res, nil
}
