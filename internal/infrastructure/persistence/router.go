package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

// PartialWriteError means the document reached some backends but not all.
type PartialWriteError struct {
	Stored []domain.StorageLocation
	Failed []domain.StorageLocation
	Err    error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("partial write: stored in %s, failed in %s: %v", joinLocations(e.Stored), joinLocations(e.Failed), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

func IsPartialWrite(err error) bool {
	var partial *PartialWriteError
	return errors.As(err, &partial)
}

// Router implements ports.DocumentPersistence over a local and a cloud store.
// Either store may be nil when that backend is not configured.
type Router struct {
	local  ports.DocumentStore
	cloud  ports.DocumentStore
	logger *slog.Logger
}

func NewRouter(local, cloud ports.DocumentStore, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{local: local, cloud: cloud, logger: logger}
}

type target struct {
	location domain.StorageLocation
	store    ports.DocumentStore
}

func (r *Router) targets(op string, location domain.StorageLocation) ([]target, error) {
	var out []target
	switch location {
	case domain.LocationLocal:
		out = append(out, target{domain.LocationLocal, r.local})
	case domain.LocationCloud:
		out = append(out, target{domain.LocationCloud, r.cloud})
	case domain.LocationBoth:
		out = append(out, target{domain.LocationLocal, r.local}, target{domain.LocationCloud, r.cloud})
	default:
		return nil, domain.NewError(domain.CodeValidationFailed, op, fmt.Sprintf("unknown storage location %q", location), nil)
	}
	for _, t := range out {
		if t.store == nil {
			return nil, domain.NewError(domain.CodeStorageFailed, op, fmt.Sprintf("%s storage is not configured", t.location), nil)
		}
	}
	return out, nil
}

// Put writes to every backend of location. With "both" the writes run
// concurrently and a single failure is reported as a PartialWriteError.
func (r *Router) Put(ctx context.Context, location domain.StorageLocation, doc *domain.Document, blob []byte) error {
	const op = "persistence.put"
	targets, err := r.targets(op, location)
	if err != nil {
		return err
	}

	errs := make([]error, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			errs[i] = t.store.Put(ctx, doc, blob)
			return nil
		})
	}
	_ = g.Wait()

	var stored, failed []domain.StorageLocation
	for i, t := range targets {
		if errs[i] != nil {
			failed = append(failed, t.location)
			r.logger.Error("storage_write_failed", "location", string(t.location), "document_id", doc.ID, "error", errs[i])
			continue
		}
		stored = append(stored, t.location)
	}
	joined := errors.Join(errs...)
	switch {
	case len(failed) == 0:
		return nil
	case len(stored) == 0:
		return domain.NewError(domain.CodeStorageFailed, op, "write failed", joined)
	default:
		return domain.NewError(domain.CodeStorageFailed, op, "partial write",
			&PartialWriteError{Stored: stored, Failed: failed, Err: joined})
	}
}

// Get reads from the first backend of location that has the document.
func (r *Router) Get(ctx context.Context, location domain.StorageLocation, id string) (*domain.Document, error) {
	targets, err := r.targets("persistence.get", location)
	if err != nil {
		return nil, err
	}
	var lastErr error
	for _, t := range targets {
		doc, err := t.store.Get(ctx, id)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !domain.IsKind(err, domain.ErrDocumentNotFound) {
			r.logger.Warn("storage_read_failed", "location", string(t.location), "document_id", id, "error", err)
		}
	}
	return nil, lastErr
}

// Delete removes the document from every backend of location. It is not
// found only when no backend had it.
func (r *Router) Delete(ctx context.Context, location domain.StorageLocation, id string) error {
	targets, err := r.targets("persistence.delete", location)
	if err != nil {
		return err
	}
	var (
		deleted  int
		notFound error
		failures []error
	)
	for _, t := range targets {
		err := t.store.Delete(ctx, id)
		switch {
		case err == nil:
			deleted++
		case domain.IsKind(err, domain.ErrDocumentNotFound):
			notFound = err
		default:
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return domain.NewError(domain.CodeStorageFailed, "persistence.delete", "", errors.Join(failures...))
	}
	if deleted == 0 && notFound != nil {
		return notFound
	}
	return nil
}

func joinLocations(locs []domain.StorageLocation) string {
	names := make([]string, len(locs))
	for i, l := range locs {
		names[i] = string(l)
	}
	return strings.Join(names, ",")
}
