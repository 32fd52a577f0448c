package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func TestClassifyNATSError(t *testing.T) {
	if c := classifyNATSError(fmt.Errorf("publish: %w", nats.ErrNoServers)); !c.Retryable || !c.RecordFailure {
		t.Fatalf("no servers must be retryable: %+v", c)
	}
	if c := classifyNATSError(context.Canceled); c.Retryable || c.RecordFailure {
		t.Fatalf("cancellation must not be retried or recorded: %+v", c)
	}
	if c := classifyNATSError(nats.ErrBadSubject); c.Retryable {
		t.Fatalf("bad subject must not be retried: %+v", c)
	}
}

func TestWrapPublishError(t *testing.T) {
	if err := wrapPublishError(nats.ErrConnectionClosed); !domain.IsKind(err, domain.ErrServerError) {
		t.Fatalf("expected server_error, got %v", err)
	}
	if err := wrapPublishError(errors.New("bad payload")); !domain.IsKind(err, domain.ErrProcessingFailed) {
		t.Fatalf("expected processing_failed, got %v", err)
	}
}

func TestEncodeProcessedEvent(t *testing.T) {
	created := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	payload, err := encodeProcessedEvent(&domain.Document{
		ID:             "doc-1",
		Filename:       "poliza.pdf",
		Location:       domain.LocationBoth,
		Classification: domain.ClassificationResult{Type: domain.TypeInsurancePolicy, Confidence: 0.8},
		Enhanced:       true,
		CreatedAt:      created,
		Text:           "private text",
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(payload, &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event["document_id"] != "doc-1" || event["type"] != "insurance_policy" || event["enhanced"] != true {
		t.Fatalf("unexpected event: %v", event)
	}
	if _, ok := event["text"]; ok {
		t.Fatalf("event must not carry document text")
	}
}

func TestDecodeIngestMessage(t *testing.T) {
	msg, err := decodeIngestMessage([]byte(`{"filename":"a.png","mime_type":"image/png","data":"aGk=","local_only":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(msg.Data) != "hi" || !msg.LocalOnly {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if _, err := decodeIngestMessage([]byte(`{"filename":"a.png"}`)); err == nil {
		t.Fatalf("expected error for message without content")
	}
	if _, err := decodeIngestMessage([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
}
