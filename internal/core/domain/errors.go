package domain

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrorCode is the stable, client-visible classification of a failure.
type ErrorCode string

const (
	CodeValidationFailed     ErrorCode = "validation_failed"
	CodeUnsupportedFormat    ErrorCode = "unsupported_format"
	CodeFileTooLarge         ErrorCode = "file_too_large"
	CodeCorrupted            ErrorCode = "corrupted"
	CodeInitializationFailed ErrorCode = "initialization_failed"
	CodeProcessingFailed     ErrorCode = "processing_failed"
	CodeRateLimit            ErrorCode = "rate_limit"
	CodeAuthentication       ErrorCode = "authentication"
	CodeServerError          ErrorCode = "server_error"
	CodeStorageFailed        ErrorCode = "storage_failed"
	CodeNotFound             ErrorCode = "not_found"
	CodeUnexpected           ErrorCode = "unexpected_error"
)

var (
	ErrValidationFailed     = &Error{Code: CodeValidationFailed}
	ErrUnsupportedFormat    = &Error{Code: CodeUnsupportedFormat}
	ErrFileTooLarge         = &Error{Code: CodeFileTooLarge}
	ErrCorrupted            = &Error{Code: CodeCorrupted}
	ErrInitializationFailed = &Error{Code: CodeInitializationFailed}
	ErrProcessingFailed     = &Error{Code: CodeProcessingFailed}
	ErrRateLimit            = &Error{Code: CodeRateLimit}
	ErrAuthentication       = &Error{Code: CodeAuthentication}
	ErrServerError          = &Error{Code: CodeServerError}
	ErrStorageFailed        = &Error{Code: CodeStorageFailed}
	ErrDocumentNotFound     = &Error{Code: CodeNotFound}
	ErrUnexpected           = &Error{Code: CodeUnexpected}
)

// Error is a classified failure. Sentinel values (only Code set) match any
// Error with the same code through errors.Is.
type Error struct {
	Code       ErrorCode
	Op         string
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func NewError(code ErrorCode, op, reason string, err error) *Error {
	return &Error{Code: code, Op: op, Reason: reason, Err: err}
}

func RateLimited(op string, retryAfter time.Duration, err error) *Error {
	return &Error{Code: CodeRateLimit, Op: op, RetryAfter: retryAfter, Err: err}
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	parts := make([]string, 0, 4)
	if e.Op != "" {
		parts = append(parts, e.Op)
	}
	parts = append(parts, string(e.Code))
	if e.Reason != "" {
		parts = append(parts, e.Reason)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	msg := strings.Join(parts, ": ")
	if e.RetryAfter > 0 {
		msg += " (retry after " + strconv.FormatFloat(e.RetryAfter.Seconds(), 'f', -1, 64) + "s)"
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t == nil {
		return false
	}
	return t.Op == "" && t.Reason == "" && t.Err == nil && t.Code == e.Code
}

// Retryable reports whether the failure may succeed on a later identical attempt.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeRateLimit, CodeServerError:
		return true
	default:
		return false
	}
}

// Recoverable reports whether the user can reasonably retry the whole upload.
func (c ErrorCode) Recoverable() bool {
	switch c {
	case CodeRateLimit, CodeServerError, CodeInitializationFailed, CodeStorageFailed, CodeProcessingFailed:
		return true
	default:
		return false
	}
}

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	var typed *Error
	if errors.As(kind, &typed) && typed.Op == "" && typed.Err == nil {
		return &Error{Code: typed.Code, Op: operation, Reason: typed.Reason, Err: err}
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// CodeOf returns the outermost classification of err, or unexpected_error
// when err carries none.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return CodeUnexpected
}

func RetryAfterOf(err error) time.Duration {
	var typed *Error
	if errors.As(err, &typed) {
		return typed.RetryAfter
	}
	return 0
}

// UpstreamError is a non-2xx answer from an external HTTP service.
type UpstreamError struct {
	Service    string
	StatusCode int
	RetryAfter time.Duration
	Body       string
}

func (e *UpstreamError) Error() string {
	if e == nil {
		return "upstream status error"
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s status: %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s status: %d: %s", e.Service, e.StatusCode, body)
}

// ParseRetryAfter reads a Retry-After header value given in seconds or as an HTTP date.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs * float64(time.Second))
	}
	if at, err := time.Parse(time.RFC1123, value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
