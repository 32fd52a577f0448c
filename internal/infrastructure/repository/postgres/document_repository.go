package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// DocumentRepository is the cloud DocumentStore: metadata as JSONB next to the raw blob.
type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	doc_type TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
	metadata JSONB NOT NULL,
	content BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_doc_type ON documents(doc_type);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Put(ctx context.Context, doc *domain.Document, blob []byte) error {
	metadata, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (id, filename, mime_type, size_bytes, doc_type, confidence, metadata, content, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
	filename = EXCLUDED.filename,
	mime_type = EXCLUDED.mime_type,
	size_bytes = EXCLUDED.size_bytes,
	doc_type = EXCLUDED.doc_type,
	confidence = EXCLUDED.confidence,
	metadata = EXCLUDED.metadata,
	content = EXCLUDED.content
`,
		doc.ID, doc.Filename, doc.MimeType, doc.SizeBytes, string(doc.Classification.Type),
		doc.Classification.Confidence, metadata, blob, doc.CreatedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrStorageFailed, "postgres.put", fmt.Errorf("insert document: %w", err))
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT metadata
FROM documents
WHERE id = $1
`, id)

	var metadata []byte
	if err := row.Scan(&metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "postgres.get", fmt.Errorf("document %s", id))
		}
		return nil, domain.WrapError(domain.ErrStorageFailed, "postgres.get", fmt.Errorf("scan document: %w", err))
	}

	var doc domain.Document
	if err := json.Unmarshal(metadata, &doc); err != nil {
		return nil, domain.WrapError(domain.ErrStorageFailed, "postgres.get", fmt.Errorf("unmarshal metadata: %w", err))
	}
	return &doc, nil
}

// Blob returns the stored raw bytes of a document.
func (r *DocumentRepository) Blob(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	err := r.db.QueryRowContext(ctx, `SELECT content FROM documents WHERE id = $1`, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "postgres.blob", fmt.Errorf("document %s", id))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageFailed, "postgres.blob", err)
	}
	return content, nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return domain.WrapError(domain.ErrStorageFailed, "postgres.delete", fmt.Errorf("delete document: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrStorageFailed, "postgres.delete", fmt.Errorf("rows affected: %w", err))
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "postgres.delete", fmt.Errorf("document %s", id))
	}
	return nil
}
