package main

import (
	"errors"
	"net"
	"strings"
)

// =============================================================================
// Structured failure values
// =============================================================================

// Nothing in the public surface raises: transport failures are folded into
// the result map so the caller can inspect and branch.

func transportErrorResult(err error) map[string]any {
	if isTimeoutError(err) {
		return map[string]any{"error": true, "message": "Request timed out"}
	}
	return map[string]any{"error": true, "message": "Connection failed: " + err.Error()}
}

func errorResult(message string) map[string]any {
	return map[string]any{"error": true, "message": message}
}

func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded")
}

// =============================================================================
// Fatal errors (captcha providers)
// =============================================================================

// FatalError represents an error that should stop retrying immediately.
// These are billing/authentication issues where another attempt won't help.
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

// IsFatalError checks if the error is a fatal error.
func IsFatalError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FatalError
	return errors.As(err, &fe)
}

// =============================================================================
// Retryable errors
// =============================================================================

// retryableErrorPatterns contains error message substrings that indicate
// transient network failures worth retrying with a fresh proxy.
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

// IsRetryableError checks if the error is temporary.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if IsFatalError(err) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	for _, pattern := range retryableErrorPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}
	return false
}
