package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/infrastructure/resilience"
)

// IngestMessage asks a worker to upload one file. The file is either inline
// in Data or readable at Path on a volume shared with the worker.
type IngestMessage struct {
	Filename   string                 `json:"filename"`
	MimeType   string                 `json:"mime_type"`
	Path       string                 `json:"path,omitempty"`
	Data       []byte                 `json:"data,omitempty"`
	Location   domain.StorageLocation `json:"location,omitempty"`
	LocalOnly  bool                   `json:"local_only,omitempty"`
	Language   domain.Language        `json:"language,omitempty"`
	ShareImage bool                   `json:"share_image,omitempty"`
}

// ProcessedEvent is published after a document has been stored.
type ProcessedEvent struct {
	DocumentID string                 `json:"document_id"`
	Filename   string                 `json:"filename"`
	Type       domain.DocumentType    `json:"type"`
	Confidence float64                `json:"confidence"`
	Location   domain.StorageLocation `json:"location"`
	Enhanced   bool                   `json:"enhanced"`
	CreatedAt  time.Time              `json:"created_at"`
}

type Queue struct {
	conn             *nats.Conn
	ingestSubject    string
	processedSubject string
	executor         *resilience.Executor
	logger           *slog.Logger
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, ingestSubject, processedSubject string) (*Queue, error) {
	return NewWithOptions(url, ingestSubject, processedSubject, Options{})
}

func NewWithOptions(url, ingestSubject, processedSubject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name("document-pipeline"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:             conn,
		ingestSubject:    ingestSubject,
		processedSubject: processedSubject,
		executor:         options.ResilienceExecutor,
		logger:           logger,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

func (q *Queue) PublishDocumentProcessed(ctx context.Context, doc *domain.Document) error {
	payload, err := encodeProcessedEvent(doc)
	if err != nil {
		return err
	}
	return q.publish(ctx, q.processedSubject, payload)
}

// PublishIngest enqueues a file for the worker pool.
func (q *Queue) PublishIngest(ctx context.Context, msg IngestMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal ingest message: %w", err)
	}
	return q.publish(ctx, q.ingestSubject, payload)
}

func (q *Queue) publish(ctx context.Context, subject string, payload []byte) error {
	call := func(_ context.Context) error {
		if err := q.conn.Publish(subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapPublishError(err)
	}
	return nil
}

// SubscribeIngest delivers ingest messages to handler until ctx is done,
// then drains the subscription.
func (q *Queue) SubscribeIngest(ctx context.Context, handler func(context.Context, IngestMessage) error) error {
	sub, err := q.conn.QueueSubscribe(q.ingestSubject, "workers", func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		ingest, err := decodeIngestMessage(msg.Data)
		if err != nil {
			q.logger.Error("ingest_message_invalid", "subject", msg.Subject, "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, ingest); err != nil {
			q.logger.Error("ingest_handler_failed", "filename", ingest.Filename, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeProcessedEvent(doc *domain.Document) ([]byte, error) {
	event := ProcessedEvent{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Type:       doc.Classification.Type,
		Confidence: doc.Classification.Confidence,
		Location:   doc.Location,
		Enhanced:   doc.Enhanced,
		CreatedAt:  doc.CreatedAt,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal processed event: %w", err)
	}
	return payload, nil
}

func decodeIngestMessage(data []byte) (IngestMessage, error) {
	var msg IngestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return IngestMessage{}, fmt.Errorf("decode ingest message: %w", err)
	}
	if msg.Filename == "" {
		return IngestMessage{}, fmt.Errorf("decode ingest message: filename is required")
	}
	if len(msg.Data) == 0 && msg.Path == "" {
		return IngestMessage{}, fmt.Errorf("decode ingest message: data or path is required")
	}
	return msg, nil
}
