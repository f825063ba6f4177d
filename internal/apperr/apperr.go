// Package apperr defines the closed set of gateway errors that cross the
// transport boundary. Every error carries the HTTP status it maps to, so
// handlers never have to guess from sentinel comparisons.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error is a gateway error with a client-visible status and message.
type Error struct {
	Status  int
	Code    string
	Message string

	// RetryAfter is set on rate-limit errors to indicate the remaining
	// window time. Zero otherwise.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Validation reports malformed or oversized client input (400).
func Validation(format string, args ...any) *Error {
	return &Error{Status: http.StatusBadRequest, Code: "validation", Message: fmt.Sprintf(format, args...)}
}

// Auth reports a missing or invalid identity (401).
func Auth(message string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: "auth", Message: message}
}

// QuotaExceeded reports a breached monthly token or request cap (402).
func QuotaExceeded(format string, args ...any) *Error {
	return &Error{Status: http.StatusPaymentRequired, Code: "quota_exceeded", Message: fmt.Sprintf(format, args...)}
}

// PlanRestriction reports a model or feature outside the plan's entitlement (403).
func PlanRestriction(format string, args ...any) *Error {
	return &Error{Status: http.StatusForbidden, Code: "plan_restriction", Message: fmt.Sprintf(format, args...)}
}

// RateLimited reports too many requests inside the per-minute window (429).
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{
		Status:     http.StatusTooManyRequests,
		Code:       "rate_limited",
		Message:    fmt.Sprintf("rate limit exceeded, retry in %dms", retryAfter.Milliseconds()),
		RetryAfter: retryAfter,
	}
}

// TooManyConcurrent reports that the plan's concurrency ceiling is reached (429).
func TooManyConcurrent(max int) *Error {
	return &Error{
		Status:  http.StatusTooManyRequests,
		Code:    "too_many_concurrent",
		Message: fmt.Sprintf("too many concurrent requests, plan allows %d", max),
	}
}

// Upstream reports a recognizer or model provider failure (502).
func Upstream(err error) *Error {
	return &Error{Status: http.StatusBadGateway, Code: "upstream", Message: err.Error()}
}

// Internal reports an unexpected gateway-side failure (500).
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: "internal", Message: err.Error()}
}

// From extracts an *Error from err, wrapping unknown errors as Internal.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Internal(err)
}

// StatusOf returns the HTTP status for err, 500 for unrecognized errors.
func StatusOf(err error) int {
	return From(err).Status
}
