package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// Storage is a BlobStore on the local filesystem. Writes go through a temp
// file and a rename so readers never see a partial blob.
type Storage struct {
	basePath string
}

func New(basePath string) (*Storage, error) {
	if basePath == "" {
		basePath = "./data/storage"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &Storage{basePath: basePath}, nil
}

func (s *Storage) Put(_ context.Context, key string, data []byte) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.basePath, ".blob-*")
	if err != nil {
		return domain.WrapError(domain.ErrStorageFailed, "localfs.put", fmt.Errorf("create file: %w", err))
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return domain.WrapError(domain.ErrStorageFailed, "localfs.put", fmt.Errorf("write file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return domain.WrapError(domain.ErrStorageFailed, "localfs.put", fmt.Errorf("close file: %w", err))
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return domain.WrapError(domain.ErrStorageFailed, "localfs.put", fmt.Errorf("rename file: %w", err))
	}
	return nil
}

func (s *Storage) Get(_ context.Context, key string) ([]byte, error) {
	path, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "localfs.get", err)
	}
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorageFailed, "localfs.get", fmt.Errorf("open file: %w", err))
	}
	return data, nil
}

// Delete removes the blob; a missing blob is not an error.
func (s *Storage) Delete(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return domain.WrapError(domain.ErrStorageFailed, "localfs.delete", err)
	}
	return nil
}

func (s *Storage) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", domain.NewError(domain.CodeValidationFailed, "localfs", "invalid blob key", nil)
	}
	return filepath.Join(s.basePath, key), nil
}
