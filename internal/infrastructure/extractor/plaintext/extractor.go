package plaintext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, _ string, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", domain.NewError(domain.CodeUnsupportedFormat, "plaintext.extract", "text is not valid utf-8", nil)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	return strings.TrimSpace(text), nil
}
