package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

func newRepoWithMock(t *testing.T) (*DocumentRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	return &DocumentRepository{db: db}, mock, func() { _ = db.Close() }
}

func sampleDocument() *domain.Document {
	return &domain.Document{
		ID:        "doc-1",
		Filename:  "factura.png",
		MimeType:  "image/png",
		SizeBytes: 4,
		Location:  domain.LocationCloud,
		Text:      "FACTURA",
		Classification: domain.ClassificationResult{
			Type:       domain.TypeInvoice,
			Confidence: 0.72,
		},
		CreatedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestPutUpsertsDocument(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	doc := sampleDocument()
	mock.ExpectExec("INSERT INTO documents").
		WithArgs("doc-1", "factura.png", "image/png", int64(4), "invoice", 0.72, sqlmock.AnyArg(), []byte("blob"), doc.CreatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Put(context.Background(), doc, []byte("blob")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPutWrapsStorageFailure(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("INSERT INTO documents").WillReturnError(errors.New("connection reset"))

	err := repo.Put(context.Background(), sampleDocument(), []byte("blob"))
	if !domain.IsKind(err, domain.ErrStorageFailed) {
		t.Fatalf("expected storage_failed, got %v", err)
	}
}

func TestGetDecodesMetadata(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	metadata, err := json.Marshal(sampleDocument())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	mock.ExpectQuery("SELECT metadata").
		WithArgs("doc-1").
		WillReturnRows(sqlmock.NewRows([]string{"metadata"}).AddRow(metadata))

	doc, err := repo.Get(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if doc.Classification.Type != domain.TypeInvoice || doc.Text != "FACTURA" {
		t.Fatalf("unexpected document: %+v", doc)
	}
}

func TestGetReturnsDomainNotFound(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectQuery("SELECT metadata").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.Get(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDeleteReturnsDomainNotFoundWhenNoRowsAffected(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectExec("DELETE FROM documents").
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestEnsureSchemaTakesAdvisoryLock(t *testing.T) {
	repo, mock, done := newRepoWithMock(t)
	defer done()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS documents").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
