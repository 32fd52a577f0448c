package extractor

import (
	"context"
	"strings"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
	"github.com/kirillkom/document-pipeline/internal/core/ports"
)

// Mux dispatches text extraction by MIME type.
type Mux struct {
	byType map[string]ports.TextExtractor
}

func NewMux() *Mux {
	return &Mux{byType: make(map[string]ports.TextExtractor)}
}

func (m *Mux) Register(mimeType string, extractor ports.TextExtractor) *Mux {
	m.byType[normalizeMIME(mimeType)] = extractor
	return m
}

func (m *Mux) Supports(mimeType string) bool {
	_, ok := m.byType[normalizeMIME(mimeType)]
	return ok
}

func (m *Mux) Extract(ctx context.Context, mimeType string, data []byte) (string, error) {
	extractor, ok := m.byType[normalizeMIME(mimeType)]
	if !ok {
		return "", domain.NewError(domain.CodeUnsupportedFormat, "extractor.mux", "no text extractor for "+mimeType, nil)
	}
	return extractor.Extract(ctx, mimeType, data)
}

func normalizeMIME(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
