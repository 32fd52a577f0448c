package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

type fakeStore struct {
	mu     sync.Mutex
	docs   map[string]*domain.Document
	putErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*domain.Document)}
}

func (f *fakeStore) Put(_ context.Context, doc *domain.Document, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrDocumentNotFound, "fake.get", errors.New(id))
	}
	return doc, nil
}

func (f *fakeStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.WrapError(domain.ErrDocumentNotFound, "fake.delete", errors.New(id))
	}
	delete(f.docs, id)
	return nil
}

func TestPutBothWritesEverywhere(t *testing.T) {
	local, cloud := newFakeStore(), newFakeStore()
	router := NewRouter(local, cloud, nil)

	if err := router.Put(context.Background(), domain.LocationBoth, &domain.Document{ID: "d1"}, nil); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if len(local.docs) != 1 || len(cloud.docs) != 1 {
		t.Fatalf("expected both stores to hold the document")
	}
}

func TestPutBothReportsPartialWrite(t *testing.T) {
	local, cloud := newFakeStore(), newFakeStore()
	cloud.putErr = errors.New("network down")
	router := NewRouter(local, cloud, nil)

	err := router.Put(context.Background(), domain.LocationBoth, &domain.Document{ID: "d1"}, nil)
	if !domain.IsKind(err, domain.ErrStorageFailed) {
		t.Fatalf("expected storage_failed, got %v", err)
	}
	var partial *PartialWriteError
	if !errors.As(err, &partial) {
		t.Fatalf("expected partial write, got %v", err)
	}
	if len(partial.Stored) != 1 || partial.Stored[0] != domain.LocationLocal || partial.Failed[0] != domain.LocationCloud {
		t.Fatalf("unexpected partial write: %+v", partial)
	}
}

func TestPutTotalFailureIsNotPartial(t *testing.T) {
	local, cloud := newFakeStore(), newFakeStore()
	local.putErr = errors.New("disk full")
	cloud.putErr = errors.New("network down")
	router := NewRouter(local, cloud, nil)

	err := router.Put(context.Background(), domain.LocationBoth, &domain.Document{ID: "d1"}, nil)
	if !domain.IsKind(err, domain.ErrStorageFailed) || IsPartialWrite(err) {
		t.Fatalf("expected total storage failure, got %v", err)
	}
}

func TestUnconfiguredBackend(t *testing.T) {
	router := NewRouter(newFakeStore(), nil, nil)
	err := router.Put(context.Background(), domain.LocationCloud, &domain.Document{ID: "d1"}, nil)
	if !domain.IsKind(err, domain.ErrStorageFailed) {
		t.Fatalf("expected storage_failed, got %v", err)
	}
	err = router.Put(context.Background(), domain.StorageLocation("moon"), &domain.Document{ID: "d1"}, nil)
	if !domain.IsKind(err, domain.ErrValidationFailed) {
		t.Fatalf("expected validation_failed, got %v", err)
	}
}

func TestGetAndDeleteAcrossBackends(t *testing.T) {
	local, cloud := newFakeStore(), newFakeStore()
	router := NewRouter(local, cloud, nil)
	ctx := context.Background()
	if err := router.Put(ctx, domain.LocationCloud, &domain.Document{ID: "d1", Filename: "a.png"}, nil); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	doc, err := router.Get(ctx, domain.LocationBoth, "d1")
	if err != nil || doc.Filename != "a.png" {
		t.Fatalf("expected cloud fallback, got %+v (%v)", doc, err)
	}
	if err := router.Delete(ctx, domain.LocationBoth, "d1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := router.Delete(ctx, domain.LocationBoth, "d1"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("expected not_found on second delete, got %v", err)
	}
}
