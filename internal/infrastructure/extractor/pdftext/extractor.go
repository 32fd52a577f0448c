package pdftext

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/document-pipeline/internal/core/domain"
)

// Extractor reads the embedded text layer of a PDF. Scanned PDFs without a
// text layer yield an empty string.
type Extractor struct {
	maxPages int
}

func NewExtractor(maxPages int) *Extractor {
	return &Extractor{maxPages: maxPages}
}

func (e *Extractor) Extract(ctx context.Context, _ string, data []byte) (text string, err error) {
	const op = "pdftext.extract"
	// ledongthuc/pdf panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = domain.NewError(domain.CodeCorrupted, op, "malformed pdf", nil)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", domain.NewError(domain.CodeCorrupted, op, "malformed pdf", err)
	}
	if e.maxPages > 0 && reader.NumPage() > e.maxPages {
		return "", domain.NewError(domain.CodeFileTooLarge, op, "too many pages", nil)
	}

	var sb strings.Builder
	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", domain.NewError(domain.CodeProcessingFailed, op, "cancelled", err)
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			return "", domain.NewError(domain.CodeCorrupted, op, "unreadable page", err)
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String()), nil
}

// PageCount reports the number of pages without extracting text.
func PageCount(r io.ReaderAt, size int64) (int, error) {
	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return 0, err
	}
	return reader.NumPage(), nil
}
