package spapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/zigilabs/amazon-mcp/internal/common"
)

const (
	userAgent       = "ZigiAmazonMCP/1.0 (Language=Go)"
	maxResponseSize = 50 * 1024 * 1024

	backoffBase = 500 * time.Millisecond
	backoffCap  = 16 * time.Second
)

// Request describes one SP-API call. Route is the route template used for
// rate limiting; Path is the concrete URL path.
type Request struct {
	Method      string
	Route       string
	Path        string
	Query       url.Values
	Body        []byte
	ContentType string
	Marketplace Marketplace
}

// Response is the raw upstream result plus the correlation id assigned to
// the dispatch.
type Response struct {
	Status    int
	Body      []byte
	Header    http.Header
	RequestID string
}

// Client is the SP-API dispatcher: admit, fetch credentials, sign, send,
// classify, retry.
type Client struct {
	creds   *CredentialManager
	signer  *Signer
	limiter *RateLimiter
	http    *http.Client
	log     *common.Logger

	maxRetries       int
	endpointOverride string

	// sleep and jitter are replaced in tests.
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewClient wires the dispatcher. endpointOverride replaces the regional
// host when non-empty (tests point it at a local server).
func NewClient(creds *CredentialManager, limiter *RateLimiter, log *common.Logger, maxRetries, timeoutSeconds int, endpointOverride string) *Client {
	if maxRetries < 0 {
		maxRetries = 3
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}
	return &Client{
		creds:            creds,
		signer:           NewSigner(),
		limiter:          limiter,
		http:             &http.Client{Timeout: time.Duration(timeoutSeconds) * time.Second},
		log:              log,
		maxRetries:       maxRetries,
		endpointOverride: endpointOverride,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
		jitter: rand.Float64,
	}
}

// Do executes one SP-API call with the full pipeline. On a 401 the access
// token is refreshed once and the request retried once, outside the normal
// retry budget.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()
	log := c.log
	if log != nil {
		log = log.WithCorrelationId(requestID)
	}

	refreshed401 := false
	var lastErr *Error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoffDelay(attempt, lastErr)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, NewError(KindTimeout, "cancelled during retry backoff", err)
			}
		}

		if err := c.limiter.Admit(ctx, req.Route); err != nil {
			return nil, err
		}

		resp, err := c.send(ctx, req, requestID)
		if err == nil {
			if log != nil {
				log.Debug().
					Str("method", req.Method).
					Str("path", req.Path).
					Int("status", resp.Status).
					Msg("sp-api request complete")
			}
			return resp, nil
		}

		e := AsError(err)

		// One forced token refresh on 401, then one immediate retry that
		// does not consume the retry budget.
		if e.Status == http.StatusUnauthorized && !refreshed401 {
			refreshed401 = true
			c.creds.InvalidateAccessToken()
			attempt--
			lastErr = nil
			continue
		}

		if !e.Retryable() || attempt == c.maxRetries {
			if log != nil {
				log.Warn().
					Str("method", req.Method).
					Str("path", req.Path).
					Int("status", e.Status).
					Str("kind", string(e.Kind)).
					Msg("sp-api request failed")
			}
			return nil, e
		}
		lastErr = e
	}
	return nil, lastErr
}

// backoffDelay computes the delay before the given attempt: exponential with
// jitter, capped, with a 429 Retry-After hint taking precedence.
func (c *Client) backoffDelay(attempt int, last *Error) time.Duration {
	if last != nil && last.Kind == KindRateLimitExceeded && last.RetryAfter > 0 {
		return last.RetryAfter
	}
	delay := backoffBase * time.Duration(1<<(attempt-1))
	if delay > backoffCap {
		delay = backoffCap
	}
	// jitter +/- 25%
	delay = time.Duration(float64(delay) * (0.75 + 0.5*c.jitter()))
	if delay > backoffCap {
		delay = backoffCap
	}
	return delay
}

// send performs a single signed attempt and classifies the outcome.
func (c *Client) send(ctx context.Context, req Request, requestID string) (*Response, error) {
	token, err := c.creds.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	base := req.Marketplace.Endpoint
	if c.endpointOverride != "" {
		base = c.endpointOverride
	}
	u := base + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, u, bodyReader)
	if err != nil {
		return nil, NewError(KindInternalError, "building request", err)
	}

	httpReq.Header.Set("x-amz-access-token", token)
	httpReq.Header.Set("user-agent", userAgent)
	httpReq.Header.Set("x-request-id", requestID)
	if len(req.Body) > 0 {
		ct := req.ContentType
		if ct == "" {
			ct = "application/json"
		}
		httpReq.Header.Set("content-type", ct)
	}

	creds, err := c.creds.SignedCredentials(ctx, req.Marketplace.Region)
	if err != nil {
		return nil, err
	}
	if err := c.signer.Sign(ctx, httpReq, req.Body, creds, req.Marketplace.Region); err != nil {
		return nil, err
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, NewError(KindTimeout, "request cancelled", ctx.Err())
		}
		// a transport read timeout with a live context is a network
		// failure, not a deadline
		var ue *url.Error
		if errors.As(err, &ue) && ue.Timeout() {
			return nil, NewError(KindNetworkError, "request timed out", err)
		}
		return nil, NewError(KindNetworkError, "request failed", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return nil, NewError(KindNetworkError, "reading response body", err)
	}

	if c.log != nil {
		c.log.Trace().
			Str("path", req.Path).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("sp-api round trip")
	}

	if httpResp.StatusCode >= 200 && httpResp.StatusCode < 300 {
		return &Response{
			Status:    httpResp.StatusCode,
			Body:      body,
			Header:    httpResp.Header,
			RequestID: requestID,
		}, nil
	}
	return nil, classifyStatus(httpResp, body)
}

// classifyStatus maps an upstream error response to the canonical taxonomy.
func classifyStatus(resp *http.Response, body []byte) *Error {
	e := &Error{
		Status:  resp.StatusCode,
		Message: fmt.Sprintf("SP-API returned %d", resp.StatusCode),
		Details: parseUpstreamErrors(body),
	}
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		e.Kind = KindInvalidInput
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		e.Kind = KindAuthFailed
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimitExceeded
		e.RetryAfter = retryAfterHint(resp.Header)
	default:
		e.Kind = KindAPIError
	}
	return e
}

// retryAfterHint reads the Retry-After header, falling back to the inverse
// of the advertised rate limit header.
func retryAfterHint(h http.Header) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.ParseFloat(v, 64); err == nil && secs > 0 {
			return time.Duration(secs * float64(time.Second))
		}
	}
	if v := h.Get("x-amzn-RateLimit-Limit"); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps > 0 {
			return time.Duration(float64(time.Second) / rps)
		}
	}
	return 0
}

// parseUpstreamErrors extracts the SP-API error list when the body carries
// one, otherwise returns the raw text.
func parseUpstreamErrors(body []byte) any {
	if len(body) == 0 {
		return nil
	}
	var parsed struct {
		Errors []map[string]any `json:"errors"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		return parsed.Errors
	}
	return string(body)
}
