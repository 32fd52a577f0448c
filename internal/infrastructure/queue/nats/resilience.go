package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
)

// Connection-level failures that a reconnect can clear.
var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

// publishCode maps a publish failure to the code reported to the pipeline.
func publishCode(err error) domain.ErrorCode {
	if resilience.IsCircuitOpen(err) {
		return domain.CodeServerError
	}
	for _, target := range transientErrors {
		if errors.Is(err, target) {
			return domain.CodeServerError
		}
	}
	return domain.CodeProcessingFailed
}

func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{}
	}
	return resilience.ErrorClassification{
		Retryable:     publishCode(err).Retryable(),
		RecordFailure: true,
	}
}

func wrapPublishError(err error) error {
	if err == nil {
		return nil
	}
	return domain.NewError(publishCode(err), "nats.publish", "", err)
}
