package spapi

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind is the canonical classification every failure maps to before it
// reaches a caller.
type ErrorKind string

const (
	KindAuthFailed        ErrorKind = "auth_failed"
	KindInvalidInput      ErrorKind = "invalid_input"
	KindRateLimitExceeded ErrorKind = "rate_limit_exceeded"
	KindAPIError          ErrorKind = "api_error"
	KindNetworkError      ErrorKind = "network_error"
	KindTimeout           ErrorKind = "timeout"
	KindFilterFailed      ErrorKind = "filter_failed"
	KindInternalError     ErrorKind = "internal_error"
)

// Error is the typed error carried across all spapi layers. Kind drives both
// the retry decision in the dispatcher and the error code in the response
// envelope.
type Error struct {
	Kind       ErrorKind
	Message    string
	Status     int           // upstream HTTP status, 0 when not applicable
	RetryAfter time.Duration // populated for rate_limit_exceeded
	Details    any           // upstream error payload when one was parseable
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError creates a typed error wrapping an optional cause.
func NewError(kind ErrorKind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

// AsError extracts an *Error from err, synthesizing an internal_error when
// the chain carries none.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternalError, Message: err.Error(), cause: err}
}

// Retryable reports whether the dispatcher may retry after this error:
// throttles, upstream 5xx on the retryable set, and transport failures.
// A timeout means the operation deadline is gone; retrying it is useless.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimitExceeded, KindNetworkError:
		return true
	case KindAPIError:
		switch e.Status {
		case 500, 502, 503, 504:
			return true
		}
	}
	return false
}

// Metadata is attached to every envelope.
type Metadata map[string]any

// Envelope is the uniform result shape returned by every tool.
type Envelope struct {
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	ErrorCode  string    `json:"error,omitempty"`
	Message    string    `json:"message,omitempty"`
	Details    any       `json:"details,omitempty"`
	RetryAfter *float64  `json:"retry_after,omitempty"`
	Metadata   Metadata  `json:"metadata"`
}

func newMetadata(requestID string) Metadata {
	m := Metadata{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if requestID != "" {
		m["request_id"] = requestID
	}
	return m
}

// Ok builds a success envelope. Extra metadata entries are merged over the
// standard timestamp/request_id set.
func Ok(data any, requestID string, extra Metadata) Envelope {
	m := newMetadata(requestID)
	for k, v := range extra {
		m[k] = v
	}
	return Envelope{Success: true, Data: data, Metadata: m}
}

// Fail builds an error envelope from a typed error.
func Fail(err error, requestID string, extra Metadata) Envelope {
	e := AsError(err)
	m := newMetadata(requestID)
	for k, v := range extra {
		m[k] = v
	}
	env := Envelope{
		Success:   false,
		ErrorCode: string(e.Kind),
		Message:   e.Message,
		Details:   e.Details,
		Metadata:  m,
	}
	if e.RetryAfter > 0 {
		secs := e.RetryAfter.Seconds()
		env.RetryAfter = &secs
	}
	return env
}
