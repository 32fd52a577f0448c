package reasoning

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
)

// classifyError turns any failure of a reasoning call into a typed domain error.
// parent is the caller's context; a deadline on a per-call context is a timeout
// of the service, a cancelled parent is not.
func classifyError(parent context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	var typed *domain.Error
	if errors.As(err, &typed) {
		return err
	}
	if parentErr := parent.Err(); parentErr != nil {
		return domain.NewError(domain.CodeProcessingFailed, op, "request cancelled", err)
	}
	if resilience.IsCircuitOpen(err) {
		return domain.NewError(domain.CodeServerError, op, "circuit open", err)
	}

	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		switch {
		case upstream.StatusCode == http.StatusTooManyRequests:
			return domain.RateLimited(op, upstream.RetryAfter, err)
		case upstream.StatusCode == http.StatusUnauthorized || upstream.StatusCode == http.StatusForbidden:
			return domain.NewError(domain.CodeAuthentication, op, "", err)
		case upstream.StatusCode == http.StatusRequestTimeout || upstream.StatusCode >= 500:
			return domain.NewError(domain.CodeServerError, op, "", err)
		default:
			return domain.NewError(domain.CodeProcessingFailed, op, "request rejected", err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.CodeServerError, op, "call timed out", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.NewError(domain.CodeServerError, op, "", err)
	}
	return domain.NewError(domain.CodeProcessingFailed, op, "", err)
}

// retryClassifier feeds typed errors into the resilience executor. Only
// server errors count against the circuit breaker.
func retryClassifier(err error) resilience.ErrorClassification {
	code := domain.CodeOf(err)
	return resilience.ErrorClassification{
		Retryable:     code.Retryable(),
		RecordFailure: code == domain.CodeServerError,
		RetryAfter:    domain.RetryAfterOf(err),
	}
}
