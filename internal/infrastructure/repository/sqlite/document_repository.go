package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

// DocumentRepository is the local DocumentStore: metadata rows in SQLite,
// blobs in a BlobStore keyed by document id.
type DocumentRepository struct {
	db    *sql.DB
	blobs ports.BlobStore
}

func OpenDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	// modernc.org/sqlite registers the "sqlite" driver name.
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return db, nil
}

func NewDocumentRepository(db *sql.DB, blobs ports.BlobStore) *DocumentRepository {
	return &DocumentRepository{db: db, blobs: blobs}
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	doc_type TEXT NOT NULL,
	metadata TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);
`
	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}
	return nil
}

// Put writes the blob first and removes it again when the metadata row cannot be written.
func (r *DocumentRepository) Put(ctx context.Context, doc *domain.Document, blob []byte) error {
	metadata, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := r.blobs.Put(ctx, doc.ID, blob); err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (id, filename, doc_type, metadata, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	filename = excluded.filename,
	doc_type = excluded.doc_type,
	metadata = excluded.metadata
`, doc.ID, doc.Filename, string(doc.Classification.Type), string(metadata), doc.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		_ = r.blobs.Delete(ctx, doc.ID)
		return domain.WrapError(domain.ErrStorageFailed, "sqlite.put", fmt.Errorf("insert document: %w", err))
	}
	return nil
}

func (r *DocumentRepository) Get(ctx context.Context, id string) (*domain.Document, error) {
	var metadata string
	err := r.db.QueryRowContext(ctx, `SELECT metadata FROM documents WHERE id = ?`, id).Scan(&metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "sqlite.get", fmt.Errorf("document %s", id))
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageFailed, "sqlite.get", fmt.Errorf("scan document: %w", err))
	}

	var doc domain.Document
	if err := json.Unmarshal([]byte(metadata), &doc); err != nil {
		return nil, domain.WrapError(domain.ErrStorageFailed, "sqlite.get", fmt.Errorf("unmarshal metadata: %w", err))
	}
	return &doc, nil
}

func (r *DocumentRepository) Blob(ctx context.Context, id string) ([]byte, error) {
	return r.blobs.Get(ctx, id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return domain.WrapError(domain.ErrStorageFailed, "sqlite.delete", fmt.Errorf("delete document: %w", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return domain.WrapError(domain.ErrStorageFailed, "sqlite.delete", fmt.Errorf("rows affected: %w", err))
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, "sqlite.delete", fmt.Errorf("document %s", id))
	}
	return r.blobs.Delete(ctx, id)
}
