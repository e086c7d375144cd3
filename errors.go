package edupage

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrBackoffActive indicates the backoff gate is closed and no
// authentication or protected call may be attempted yet.
var ErrBackoffActive = errors.New("backoff active: attempts suspended")

// NetworkError wraps a transport-level failure (DNS, connect, timeout).
// It is surfaced to the caller and never retried by the protocol layers.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error for %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TooManyRedirectsError is returned when a request chain exceeds the hop cap.
type TooManyRedirectsError struct {
	URL  string
	Hops int
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("too many redirects (%d hops) starting at %s", e.Hops, e.URL)
}

// RpcExhaustedError is returned when every envelope ordinal up to the cap
// was rejected with the wrong-data sentinel. It signals protocol drift
// between this client and the portal.
type RpcExhaustedError struct {
	Action   string
	Attempts int
}

func (e *RpcExhaustedError) Error() string {
	return fmt.Sprintf("rpc %q exhausted after %d envelope versions", e.Action, e.Attempts)
}

// RpcParseError is returned when a terminal attempt's decoded body is not
// valid JSON. Only a snippet of the body is carried, never the full text,
// so credentials or session state can't leak into logs wholesale.
type RpcParseError struct {
	Action  string
	Snippet string
}

func (e *RpcParseError) Error() string {
	return fmt.Sprintf("rpc %q returned non-JSON body: %q", e.Action, e.Snippet)
}

// SessionIncompleteError is returned when the warmup sequence finished but
// the required cookie never appeared in the jar.
type SessionIncompleteError struct {
	Cookie string
}

func (e *SessionIncompleteError) Error() string {
	return fmt.Sprintf("session incomplete: cookie %q missing after warmup", e.Cookie)
}

// AuthRejectedError carries the portal's reason text for a rejected login.
type AuthRejectedError struct {
	Reason string
}

func (e *AuthRejectedError) Error() string {
	return fmt.Sprintf("authentication rejected: %s", e.Reason)
}

// bodySnippet caps diagnostic body excerpts.
func bodySnippet(s string) string {
	const max = 160
	if len(s) > max {
		return s[:max]
	}
	return s
}

// =============================================================================
// Fatal Errors
// =============================================================================

// FatalError represents an error that should stop the whole run immediately.
// These are typically billing/API-key issues on a captcha provider where
// retrying won't help.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string {
	return e.Err.Error()
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// NewFatalError wraps an error as fatal.
func NewFatalError(err error) error {
	return &FatalError{Err: err}
}

// IsFatalError checks if the error is a fatal error that should stop the run.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	return errors.As(err, &fe)
}

// =============================================================================
// Retryable Errors
// =============================================================================

// retryableErrorPatterns contains error message substrings that indicate
// connection-level failures worth retrying on a fresh session.
var retryableErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"no such host",
	"i/o timeout",
	"context deadline exceeded",
	"TLS handshake timeout",
	"EOF",
	"malformed HTTP response",
	"transport connection broken",
	"use of closed network connection",
}

// IsRetryableError checks if the error is temporary and worth retrying
// after a session replacement.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if IsFatalError(err) {
		return false
	}

	if isNetworkTimeout(err) {
		return true
	}

	return containsRetryablePattern(err.Error())
}

func isNetworkTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func containsRetryablePattern(errStr string) bool {
	for _, pattern := range retryableErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
