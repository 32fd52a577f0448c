package ports

import (
	"context"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// RecognitionEngine is the raw OCR engine behind the recognition adapter.
// Initialize loads the engine and the default language; Recognize may be
// asked for any language, or domain.LanguageAuto for all installed ones.
type RecognitionEngine interface {
	Initialize(ctx context.Context, lang domain.Language) error
	Recognize(ctx context.Context, image []byte, lang domain.Language) (domain.RecognitionResult, error)
	Terminate() error
}

// TextRecognizer recovers text from an image, owning the engine lifecycle.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte, lang domain.Language) (domain.RecognitionResult, error)
}

// TextExtractor reads embedded text from non-image uploads.
type TextExtractor interface {
	Extract(ctx context.Context, mimeType string, data []byte) (string, error)
}

// ImageProcessor prepares images for storage and recognition.
type ImageProcessor interface {
	Dimensions(data []byte) (width, height int, err error)
	Compress(data []byte, mimeType string) ([]byte, string, error)
	Prepare(data []byte) ([]byte, error)
}

// DocumentClassifier scores recognized text against the document type table.
type DocumentClassifier interface {
	Classify(text string) domain.ClassificationResult
}

// FieldExtractor pulls structured fields out of recognized text.
type FieldExtractor interface {
	Extract(text string, docType domain.DocumentType) domain.ExtractedFields
}

// TextAnonymizer strips personal data from text before it leaves the process.
type TextAnonymizer interface {
	Anonymize(text string) string
}

// ReasoningService is an external text-reasoning model.
type ReasoningService interface {
	Complete(ctx context.Context, req domain.ReasoningRequest) (domain.ReasoningResponse, error)
}

// DocumentEnhancer asks the reasoning service to improve a low-confidence result.
type DocumentEnhancer interface {
	Enhance(ctx context.Context, text string, image []byte, imageMIME string) (domain.Enhancement, error)
}

// BlobStore keeps raw document bytes.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// DocumentStore is one persistence backend holding both blob and metadata.
type DocumentStore interface {
	Put(ctx context.Context, doc *domain.Document, blob []byte) error
	Get(ctx context.Context, id string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// DocumentPersistence routes documents to the backends named by a location.
type DocumentPersistence interface {
	Put(ctx context.Context, location domain.StorageLocation, doc *domain.Document, blob []byte) error
	Get(ctx context.Context, location domain.StorageLocation, id string) (*domain.Document, error)
	Delete(ctx context.Context, location domain.StorageLocation, id string) error
}

// EventPublisher announces processed documents.
type EventPublisher interface {
	PublishDocumentProcessed(ctx context.Context, doc *domain.Document) error
}
