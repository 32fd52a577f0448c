package usecase

import (
	"context"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

// DocumentUseCase reads and deletes stored documents.
type DocumentUseCase struct {
	persistence ports.DocumentPersistence
	defaultLoc  domain.StorageLocation
}

func NewDocumentUseCase(persistence ports.DocumentPersistence, defaultLocation domain.StorageLocation) *DocumentUseCase {
	if !defaultLocation.Valid() {
		defaultLocation = domain.LocationLocal
	}
	return &DocumentUseCase{persistence: persistence, defaultLoc: defaultLocation}
}

func (uc *DocumentUseCase) GetDocument(ctx context.Context, location domain.StorageLocation, id string) (*domain.Document, error) {
	if err := validateDocumentID("documents.get", id); err != nil {
		return nil, err
	}
	return uc.persistence.Get(ctx, uc.location(location), id)
}

func (uc *DocumentUseCase) DeleteDocument(ctx context.Context, location domain.StorageLocation, id string) error {
	if err := validateDocumentID("documents.delete", id); err != nil {
		return err
	}
	return uc.persistence.Delete(ctx, uc.location(location), id)
}

func (uc *DocumentUseCase) location(loc domain.StorageLocation) domain.StorageLocation {
	if loc == "" {
		return uc.defaultLoc
	}
	return loc
}

func validateDocumentID(op, id string) error {
	if strings.TrimSpace(id) == "" {
		return domain.NewError(domain.CodeValidationFailed, op, "document id is required", nil)
	}
	return nil
}
