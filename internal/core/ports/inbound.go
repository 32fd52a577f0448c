package ports

import (
	"context"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// DocumentUploader runs one upload through the whole pipeline. It never
// returns an error; failures are reported in the result.
type DocumentUploader interface {
	Upload(ctx context.Context, file domain.UploadFile, opts domain.UploadOptions, progress domain.ProgressFunc) domain.UploadResult
}

// UploadQueue schedules batch uploads with bounded concurrency.
type UploadQueue interface {
	Enqueue(files []domain.UploadFile, opts domain.UploadOptions) []string
	Retry(id string) error
	Cancel(id string) error
	ClearCompleted() int
	Snapshot() domain.QueueSnapshot
	Item(id string) (domain.UploadQueueItem, bool)
}

// DocumentReader is the inbound read model for stored documents.
type DocumentReader interface {
	GetDocument(ctx context.Context, location domain.StorageLocation, id string) (*domain.Document, error)
	DeleteDocument(ctx context.Context, location domain.StorageLocation, id string) error
}
